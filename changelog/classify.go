package changelog

import "regexp"

const modifiedCommandGroup = "command"

// Синтаксисы модераторских команд, которыми добавляют, меняют и удаляют команды бота.
// Проверяются по порядку, побеждает первый подошедший.
var modificationPatterns = []*regexp.Regexp{
	// Старый синтаксис: !addcom / !editcom / !delcom
	regexp.MustCompile(`(?i)^!(?:add|edit|del)com\s+(?P<command>\S+)`),

	// https://docs.nightbot.tv/commands/commands
	regexp.MustCompile(`(?i)^!commands\s+(?:add|edit|delete)\s+(?P<command>\S+)`),
}

// Classify возвращает имя команды, которую меняет сообщение, например "!foo" для
// "!addcom !foo bar". Права отправителя здесь не проверяются.
func Classify(text string) (string, bool) {
	for _, re := range modificationPatterns {
		m := re.FindStringSubmatch(text)
		if m == nil {
			continue
		}
		return m[re.SubexpIndex(modifiedCommandGroup)], true
	}
	return "", false
}
