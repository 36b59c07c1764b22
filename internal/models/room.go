package models

import "time"

// Room kinds stored in the rooms table.
const (
	RoomKindClassroom = "classroom"
	RoomKindLab       = "lab"
)

// Room represents a teaching space.
type Room struct {
	ID        string    `db:"id" json:"id"`
	Name      string    `db:"name" json:"name"`
	Kind      string    `db:"kind" json:"kind"`
	Capacity  int       `db:"capacity" json:"capacity"`
	Building  string    `db:"building" json:"building"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// RoomFilter captures filtering options for listing rooms.
type RoomFilter struct {
	Kind      string
	Search    string
	Page      int
	PageSize  int
	SortBy    string
	SortOrder string
}
