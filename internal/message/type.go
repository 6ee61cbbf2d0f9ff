package message

import "fmt"

// Type 消息类型，决定 data 的解释方式以及 fmt 是否必填
type Type int

const (
	String Type = iota
	JSON
	Image
	Audio
	Movie
)

var typeNames = [...]string{
	String: "STRING",
	JSON:   "JSON",
	Image:  "IMAGE",
	Audio:  "AUDIO",
	Movie:  "MOVIE",
}

func (t Type) String() string {
	if t.Valid() {
		return typeNames[t]
	}
	return fmt.Sprintf("Type(%d)", int(t))
}

// Valid reports whether t is one of the five wire types.
func (t Type) Valid() bool { return t >= String && t <= Movie }

// IsMedia reports whether t carries binary media and requires a fmt.
func (t Type) IsMedia() bool { return t == Image || t == Audio || t == Movie }
