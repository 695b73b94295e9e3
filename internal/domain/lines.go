package domain

import "sort"

// LineSet — желаемый состав заказа: product id -> quantity.
type LineSet map[int64]int

// BuildLineSet собирает набор позиций; при повторе товара побеждает последнее вхождение.
func BuildLineSet(inputs []LineInput) LineSet {
	set := make(LineSet, len(inputs))
	for _, in := range inputs {
		set[in.ProductID] = in.Quantity
	}
	return set
}

// LineSetOf строит набор из сохранённых строк заказа.
func LineSetOf(lines []OrderLine) LineSet {
	set := make(LineSet, len(lines))
	for _, l := range lines {
		set[l.ProductID] = l.Quantity
	}
	return set
}

// LineChange — вставка или обновление одной позиции.
type LineChange struct {
	ProductID int64
	Quantity  int
}

// LineDiff описывает, как привести сохранённые позиции к желаемым.
type LineDiff struct {
	Insert []LineChange
	// Update содержит все позиции, присутствующие в обоих наборах:
	// количество перезаписывается и updated_at обновляется даже без изменений.
	Update []LineChange
	Delete []int64
}

// Empty сообщает, что синхронизация ничего не меняет.
func (d LineDiff) Empty() bool {
	return len(d.Insert) == 0 && len(d.Update) == 0 && len(d.Delete) == 0
}

// DiffLines сравнивает текущий и целевой наборы. Результат отсортирован по product id.
func DiffLines(current, target LineSet) LineDiff {
	var diff LineDiff
	for productID, qty := range target {
		change := LineChange{ProductID: productID, Quantity: qty}
		if _, ok := current[productID]; ok {
			diff.Update = append(diff.Update, change)
		} else {
			diff.Insert = append(diff.Insert, change)
		}
	}
	for productID := range current {
		if _, ok := target[productID]; !ok {
			diff.Delete = append(diff.Delete, productID)
		}
	}

	sortChanges(diff.Insert)
	sortChanges(diff.Update)
	sort.Slice(diff.Delete, func(i, j int) bool { return diff.Delete[i] < diff.Delete[j] })

	return diff
}

func sortChanges(changes []LineChange) {
	sort.Slice(changes, func(i, j int) bool { return changes[i].ProductID < changes[j].ProductID })
}
