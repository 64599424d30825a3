package schedule

import (
	"strconv"
	"strings"
)

// Common layouts for FormatTime.
const (
	DateLayout     = "%d/%m/%Y"
	TimeLayout     = "%H:%M:%S"
	DateTimeLayout = "%d/%m/%Y %H:%M:%S"
)

// FormatTime renders the wall clock with a strftime-style layout supporting
// %d %m %Y %y %H %M %S %a %A %b and %%. It returns "" while the wall clock is
// not valid. Unknown directives are copied verbatim.
func FormatTime(wall WallClock, layout string) string {
	if wall == nil {
		return ""
	}
	t, ok := wall.Now()
	if !ok {
		return ""
	}

	var b strings.Builder
	for i := 0; i < len(layout); i++ {
		c := layout[i]
		if c != '%' || i == len(layout)-1 {
			b.WriteByte(c)
			continue
		}
		i++
		switch layout[i] {
		case 'd':
			pad2(&b, t.Day())
		case 'm':
			pad2(&b, int(t.Month()))
		case 'Y':
			b.WriteString(strconv.Itoa(t.Year()))
		case 'y':
			pad2(&b, t.Year()%100)
		case 'H':
			pad2(&b, t.Hour())
		case 'M':
			pad2(&b, t.Minute())
		case 'S':
			pad2(&b, t.Second())
		case 'a':
			b.WriteString(t.Weekday().String()[:3])
		case 'A':
			b.WriteString(t.Weekday().String())
		case 'b':
			b.WriteString(t.Month().String()[:3])
		case '%':
			b.WriteByte('%')
		default:
			b.WriteByte('%')
			b.WriteByte(layout[i])
		}
	}
	return b.String()
}

func pad2(b *strings.Builder, n int) {
	if n < 10 {
		b.WriteByte('0')
	}
	b.WriteString(strconv.Itoa(n))
}
