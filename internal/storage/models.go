package storage

// MessageRecord is one member message as stored in the database.
// ID is the source message id and is also recorded in the vector payload.
type MessageRecord struct {
	ID        string
	UserID    string
	UserName  string
	Timestamp string
	Text      string
}

// Author is a distinct (user id, display name) pair seen in the corpus.
type Author struct {
	ID           string
	Name         string
	MessageCount int
}
