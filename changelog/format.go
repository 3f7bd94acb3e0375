package changelog

import (
	"strconv"
	"strings"

	"command-changelog/model"
)

// Символы разметки Discord, которые экранируются в недоверенном тексте.
// Обратный слеш входит в набор, иначе имя вида `user\` съест закрывающие звёздочки.
const markdownSpecial = "\\*_~`>|"

// EscapeMarkdown экранирует разметку Discord в произвольном тексте.
func EscapeMarkdown(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if strings.ContainsRune(markdownSpecial, r) {
			b.WriteByte('\\')
		}
		b.WriteRune(r)
	}
	return b.String()
}

// Format выбирает шаблон по типу изменения. Пустой editor означает правку в панели управления.
// Для неизвестного типа возвращает пустую строку.
func Format(change model.Change, editor string) string {
	switch change.Kind {
	case model.ChangeAdded:
		return FormatAdded(change.New, editor)
	case model.ChangeDeleted:
		return FormatDeleted(change.Old, editor)
	case model.ChangeEdited:
		return FormatEdited(change.Old, change.New, editor)
	default:
		return ""
	}
}

// FormatAdded — анонс новой команды.
func FormatAdded(cmd model.Command, editor string) string {
	return "✨ **New** command `" + cmd.Name + "` added " + formatSource(editor) + ":\n" +
		formatCommandInfo(cmd)
}

// FormatDeleted — анонс удалённой команды.
func FormatDeleted(cmd model.Command, editor string) string {
	return "❌ **Deleted** command `" + cmd.Name + "` " + formatSource(editor) + ":\n" +
		formatCommandInfo(cmd)
}

// FormatEdited — анонс изменённой команды с прежней версией.
func FormatEdited(prev, next model.Command, editor string) string {
	return "✏ **Edited** command `" + next.Name + "` " + formatSource(editor) + " to:\n" +
		formatCommandInfo(next) + "\n" +
		" was before:\n" + formatCommandInfo(prev)
}

func formatCommandInfo(cmd model.Command) string {
	alias := "-"
	if cmd.Alias != "" {
		alias = "`" + cmd.Alias + "`"
	}

	return "> User-Level: " + cmd.UserLevel + " | " +
		"Alias: " + alias + " | " +
		"Cooldown: " + strconv.Itoa(cmd.CoolDown) + "s\n" +
		"> ```\n> " + cmd.Message + "\n> ```"
}

func formatSource(editor string) string {
	if editor == "" {
		return "in Dashboard"
	}
	return "by **" + EscapeMarkdown(editor) + "** in Twitch Chat"
}
