package repository

import (
	"errors"

	"gorm.io/gorm"
)

var (
	ErrNotFound        = errors.New("record not found")
	ErrEventNotPending = errors.New("outbound event is not pending")

	ErrInvalidEventType = errors.New("unknown outbound event type")
)

func translate(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNotFound
	}
	return err
}
