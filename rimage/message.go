package rimage

import (
	"image"
	"time"
)

// ImageMessage is one image as delivered by a sensor topic.
type ImageMessage struct {
	Topic     string
	Seq       uint64
	Timestamp time.Time
	Image     image.Image
}

// MessagePack is a synchronized set of image messages captured together.
type MessagePack struct {
	Messages []*ImageMessage
}

// NewMessagePack bundles the given messages.
func NewMessagePack(msgs ...*ImageMessage) *MessagePack {
	return &MessagePack{Messages: msgs}
}

// Len returns the number of messages in the pack.
func (mp *MessagePack) Len() int {
	if mp == nil {
		return 0
	}
	return len(mp.Messages)
}

// Find returns the first message published on topic, or nil.
func (mp *MessagePack) Find(topic string) *ImageMessage {
	if mp == nil {
		return nil
	}
	for _, msg := range mp.Messages {
		if msg != nil && msg.Topic == topic {
			return msg
		}
	}
	return nil
}

// IsEmptyImage returns whether img is nil or has zero rows or columns.
func IsEmptyImage(img image.Image) bool {
	if img == nil {
		return true
	}
	// typed nil pointers would panic in Bounds
	switch v := img.(type) {
	case *DepthMap:
		if v == nil {
			return true
		}
	case *FloatDepthMap:
		if v == nil {
			return true
		}
	case *image.Gray:
		if v == nil {
			return true
		}
	case *image.Gray16:
		if v == nil {
			return true
		}
	}
	size := img.Bounds().Size()
	return size.X <= 0 || size.Y <= 0
}
