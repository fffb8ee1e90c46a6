package service

import "sort"

// Task represents a single task item.
type Task struct {
	ID   int64  `json:"id"`
	Text string `json:"text"`
}

// SortNewestFirst orders tasks by id, highest first; equal ids keep their order.
// Ids only follow creation time where the backend allocates them in sequence,
// and hashed googletasks ids carry no order at all.
func SortNewestFirst(tasks []Task) {
	sort.SliceStable(tasks, func(i, j int) bool {
		return tasks[i].ID > tasks[j].ID
	})
}

// IndexOf returns the position of the task with the given id, or -1.
func IndexOf(tasks []Task, id int64) int {
	for i, t := range tasks {
		if t.ID == id {
			return i
		}
	}
	return -1
}
