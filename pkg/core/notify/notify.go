package notify

import "sync"

// Variant selects how a notification is styled
type Variant string

const (
	Default     Variant = "default"
	Destructive Variant = "destructive"
)

// Notification is a dismissible toast shown on the next rendered page
type Notification struct {
	Variant     Variant `json:"variant"`
	Title       string  `json:"title"`
	Description string  `json:"description"`
}

// Info creates a default-styled notification
func Info(title, description string) Notification {
	return Notification{Variant: Default, Title: title, Description: description}
}

// Failure creates a destructive notification
func Failure(title, description string) Notification {
	return Notification{Variant: Destructive, Title: title, Description: description}
}

// Queue holds notifications for one browser session until they are shown
type Queue struct {
	mu    sync.Mutex
	items []Notification
}

func NewQueue() *Queue {
	return &Queue{}
}

// Push appends n to the queue
func (q *Queue) Push(n Notification) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.items = append(q.items, n)
}

// Drain returns all queued notifications in order and empties the queue
func (q *Queue) Drain() []Notification {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := q.items
	q.items = nil
	return out
}

// Len returns the number of queued notifications
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}
