package models

import "time"

// RoomType classifies the teaching space.
type RoomType string

const (
	RoomTypeLectureHall RoomType = "lecture_hall"
	RoomTypeLab         RoomType = "lab"
	RoomTypeSeminarRoom RoomType = "seminar_room"
	RoomTypeAuditorium  RoomType = "auditorium"
)

// Room is a bookable teaching space.
type Room struct {
	ID           string       `db:"id" json:"_id"`
	Name         string       `db:"name" json:"name"`
	Building     string       `db:"building" json:"building"`
	Floor        int          `db:"floor" json:"floor"`
	Capacity     int          `db:"capacity" json:"capacity"`
	Type         RoomType     `db:"type" json:"type"`
	Equipment    StringList   `db:"equipment" json:"equipment"`
	Availability Availability `db:"availability" json:"availability"`
	CreatedAt    time.Time    `db:"created_at" json:"createdAt"`
	UpdatedAt    time.Time    `db:"updated_at" json:"updatedAt"`
}

// RoomFilter captures filtering options for listing rooms.
type RoomFilter struct {
	Building    string
	Type        RoomType
	MinCapacity int
}
