package changelog

import "strings"

// NormalizeName приводит имя команды к виду, в котором оно хранится в таблицах.
func NormalizeName(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

// Editors запоминает, кто из чата последним менял команду.
// Не потокобезопасен: сервис держит его под той же блокировкой, что и снапшот и планировщик.
type Editors struct {
	byCommand map[string]string
}

// NewEditors создаёт пустую таблицу авторов.
func NewEditors() *Editors {
	return &Editors{byCommand: make(map[string]string)}
}

// Record сохраняет автора правки, перезаписывая предыдущего.
func (e *Editors) Record(command, editor string) {
	e.byCommand[NormalizeName(command)] = editor
}

// Lookup возвращает последнего известного автора команды.
func (e *Editors) Lookup(command string) (string, bool) {
	editor, ok := e.byCommand[NormalizeName(command)]
	return editor, ok
}

// Clear забывает всех авторов.
func (e *Editors) Clear() {
	clear(e.byCommand)
}

// Len возвращает число записей.
func (e *Editors) Len() int {
	return len(e.byCommand)
}

// IgnoreSet — команды, об изменениях которых не нужно объявлять.
type IgnoreSet map[string]struct{}

// NewIgnoreSet строит набор из имён без учёта регистра.
func NewIgnoreSet(names ...string) IgnoreSet {
	set := make(IgnoreSet, len(names))
	for _, n := range names {
		if n = NormalizeName(n); n != "" {
			set[n] = struct{}{}
		}
	}
	return set
}

// Contains сообщает, игнорируется ли команда.
func (s IgnoreSet) Contains(name string) bool {
	_, ok := s[NormalizeName(name)]
	return ok
}
