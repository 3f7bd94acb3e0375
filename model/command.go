package model

import "time"

// Command — команда чат-бота в том виде, в каком её отдаёт удалённое хранилище.
type Command struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Alias     string    `json:"alias,omitempty"`
	Message   string    `json:"message"`
	UserLevel string    `json:"user_level"`
	CoolDown  int       `json:"cooldown"`
	Count     int       `json:"count"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// SameDefinition сравнивает только значимые для анонса поля.
// Count и CreatedAt намеренно не участвуют.
func (c Command) SameDefinition(o Command) bool {
	return c.Message == o.Message &&
		c.Alias == o.Alias &&
		c.UserLevel == o.UserLevel &&
		c.CoolDown == o.CoolDown
}

// Snapshot — неизменяемый набор команд на момент последней успешной выборки.
// Порядок имён совпадает с порядком выдачи.
type Snapshot struct {
	names    []string
	commands map[string]Command
}

// NewSnapshot строит снапшот из списка команд. При повторе имени побеждает
// последняя запись, позиция остаётся от первой.
func NewSnapshot(cmds []Command) Snapshot {
	s := Snapshot{
		names:    make([]string, 0, len(cmds)),
		commands: make(map[string]Command, len(cmds)),
	}
	for _, c := range cmds {
		if _, ok := s.commands[c.Name]; !ok {
			s.names = append(s.names, c.Name)
		}
		s.commands[c.Name] = c
	}
	return s
}

// Len возвращает число команд.
func (s Snapshot) Len() int {
	return len(s.names)
}

// Get возвращает команду по имени.
func (s Snapshot) Get(name string) (Command, bool) {
	c, ok := s.commands[name]
	return c, ok
}

// Has сообщает, есть ли команда в снапшоте.
func (s Snapshot) Has(name string) bool {
	_, ok := s.commands[name]
	return ok
}

// Names возвращает копию имён в порядке выдачи.
func (s Snapshot) Names() []string {
	return append([]string(nil), s.names...)
}

// Commands возвращает команды в порядке выдачи.
func (s Snapshot) Commands() []Command {
	out := make([]Command, 0, len(s.names))
	for _, name := range s.names {
		out = append(out, s.commands[name])
	}
	return out
}

// ChangeKind — тип изменения команды.
type ChangeKind int

const (
	ChangeAdded ChangeKind = iota + 1
	ChangeDeleted
	ChangeEdited
)

func (k ChangeKind) String() string {
	switch k {
	case ChangeAdded:
		return "added"
	case ChangeDeleted:
		return "deleted"
	case ChangeEdited:
		return "edited"
	default:
		return "unknown"
	}
}

// Change описывает одно обнаруженное изменение. Для Added заполнено только New,
// для Deleted только Old, для Edited оба.
type Change struct {
	Kind ChangeKind
	Old  Command
	New  Command
}

// Added создаёт изменение «команда добавлена».
func Added(c Command) Change { return Change{Kind: ChangeAdded, New: c} }

// Deleted создаёт изменение «команда удалена».
func Deleted(c Command) Change { return Change{Kind: ChangeDeleted, Old: c} }

// Edited создаёт изменение «команда отредактирована».
func Edited(prev, next Command) Change { return Change{Kind: ChangeEdited, Old: prev, New: next} }

// Name возвращает имя затронутой команды.
func (c Change) Name() string {
	if c.Kind == ChangeDeleted {
		return c.Old.Name
	}
	return c.New.Name
}
