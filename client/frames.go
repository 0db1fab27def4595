package client

import (
	"fmt"
	"regexp"
	"strconv"
)

var (
	frameRangeRE  = regexp.MustCompile(`^(\d+)-(\d+)$`)
	singleFrameRE = regexp.MustCompile(`^(\d+)$`)
)

// FrameRange is an inclusive span of frames. A single frame has Start == End.
type FrameRange struct {
	Start int
	End   int
}

func (fr FrameRange) String() string {
	if fr.Start == fr.End {
		return strconv.Itoa(fr.Start)
	}
	return fmt.Sprintf("%d-%d", fr.Start, fr.End)
}

// ParseFrameRange parses "<start>-<end>" or "<frame>".
func ParseFrameRange(s string) (FrameRange, error) {
	if m := frameRangeRE.FindStringSubmatch(s); m != nil {
		start, _ := strconv.Atoi(m[1])
		end, _ := strconv.Atoi(m[2])
		return FrameRange{Start: start, End: end}, nil
	}
	if m := singleFrameRE.FindStringSubmatch(s); m != nil {
		frame, _ := strconv.Atoi(m[1])
		return FrameRange{Start: frame, End: frame}, nil
	}
	return FrameRange{}, fmt.Errorf(
		"invalid frame range %q: the string frame range must follow the format '<startFrame>-<endFrame>' or '<frame>'", s)
}
