package transport

import (
	"fmt"
	"slices"
	"strings"

	"github.com/pion/sdp/v3"
)

// Summarize condenses an SDP blob into one trace-friendly line, e.g.
// "audio/sendrecv[opus] video/recvonly[VP8,H264], 2 candidates".
func Summarize(raw string) string {
	var sd sdp.SessionDescription
	if err := sd.Unmarshal([]byte(raw)); err != nil {
		return fmt.Sprintf("unparsable SDP (%v)", err)
	}

	sections := make([]string, 0, len(sd.MediaDescriptions))
	candidates := 0

	for _, md := range sd.MediaDescriptions {
		direction := "sendrecv"
		var names []string

		for _, a := range md.Attributes {
			switch a.Key {
			case "sendrecv", "sendonly", "recvonly", "inactive":
				direction = a.Key
			case "candidate":
				candidates++
			case "rtpmap":
				// "<pt> <name>/<clock>[/<channels>]"
				_, codec, ok := strings.Cut(a.Value, " ")
				if !ok {
					continue
				}
				name, _, _ := strings.Cut(codec, "/")
				if !slices.Contains(names, name) {
					names = append(names, name)
				}
			}
		}

		s := md.MediaName.Media + "/" + direction
		if len(names) > 0 {
			s += "[" + strings.Join(names, ",") + "]"
		}
		sections = append(sections, s)
	}

	return fmt.Sprintf("%s, %d candidates", strings.Join(sections, " "), candidates)
}
