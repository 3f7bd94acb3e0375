package changelog

import "command-changelog/model"

// Detect сравнивает два снапшота и возвращает изменения: сначала добавленные
// команды в порядке новой выдачи, затем удалённые и изменённые в порядке старого снапшота.
//
// Команда в обоих снапшотах считается изменённой, только если UpdatedAt вырос
// и поменялось хотя бы одно значимое поле.
func Detect(prev, next model.Snapshot) []model.Change {
	var changes []model.Change

	for _, cmd := range next.Commands() {
		if !prev.Has(cmd.Name) {
			changes = append(changes, model.Added(cmd))
		}
	}

	for _, old := range prev.Commands() {
		cur, ok := next.Get(old.Name)
		if !ok {
			changes = append(changes, model.Deleted(old))
			continue
		}

		// Устаревшая или повторная выдача.
		if !cur.UpdatedAt.After(old.UpdatedAt) {
			continue
		}
		// Например, обновился только счётчик использований.
		if cur.SameDefinition(old) {
			continue
		}

		changes = append(changes, model.Edited(old, cur))
	}

	return changes
}
