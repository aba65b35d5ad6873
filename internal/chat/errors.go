package chat

import "errors"

var (
	ErrNotSender         = errors.New("chat: only the original sender may do this")
	ErrNotText           = errors.New("chat: only text messages can be edited")
	ErrEditWindowExpired = errors.New("chat: edit window expired")
	ErrMessageNotFound   = errors.New("chat: message not in the current window")
	ErrInvalidMode       = errors.New("chat: invalid disappearing mode")
)
