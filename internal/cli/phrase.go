package cli

import (
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/gmsas95/medtracker/internal/tracker"
)

var (
	nameDosageRe  = regexp.MustCompile(`^([a-z][a-z\s-]*?)\s+(\d+(?:\.\d+)?\s*(?:mg|mcg|g|ml|iu|units?|tablets?|capsules?|pills?|drops?|puffs?))\b`)
	leadingNameRe = regexp.MustCompile(`^([a-z][a-z-]*)`)
	clockRe       = regexp.MustCompile(`\b(\d{1,2}):(\d{2})\s*(am|pm)?\b`)
	hourRe        = regexp.MustCompile(`\b(\d{1,2})\s*(am|pm)\b`)
)

var timeKeywords = []struct {
	word string
	time string
}{
	{"morning", "08:00"},
	{"breakfast", "08:00"},
	{"noon", "12:00"},
	{"lunch", "12:00"},
	{"evening", "18:00"},
	{"dinner", "18:00"},
	{"bedtime", "22:00"},
	{"before bed", "22:00"},
}

var dayWords = map[string]int{
	"sunday": 0, "sun": 0,
	"monday": 1, "mon": 1,
	"tuesday": 2, "tue": 2, "tues": 2,
	"wednesday": 3, "wed": 3,
	"thursday": 4, "thu": 4, "thurs": 4,
	"friday": 5, "fri": 5,
	"saturday": 6, "sat": 6,
}

// ParsePhrase reads a one-line description such as
// "Lisinopril 10mg mon wed 8am and 8:30pm with food". Days default to every
// day when none are named.
func ParsePhrase(text string) (tracker.NewMedication, error) {
	text = strings.ToLower(strings.TrimSpace(text))
	var med tracker.NewMedication

	if m := nameDosageRe.FindStringSubmatch(text); m != nil {
		med.Name = strings.TrimSpace(m[1])
		med.Dosage = strings.ReplaceAll(m[2], " ", "")
	} else if m := leadingNameRe.FindStringSubmatch(text); m != nil {
		med.Name = m[1]
	}
	if med.Name == "" {
		return med, fmt.Errorf("no medication name in %q", text)
	}
	med.Name = titleCase(med.Name)

	times, err := phraseTimes(text)
	if err != nil {
		return med, err
	}
	med.Times = times
	med.Days = phraseDays(text)

	if strings.Contains(text, "with food") || strings.Contains(text, "with meals") || strings.Contains(text, "after meal") {
		med.Notes = "Take with food"
	}
	return med, nil
}

func phraseTimes(text string) ([]string, error) {
	seen := map[string]bool{}
	var times []string
	add := func(hour, minute int, ampm string) error {
		switch ampm {
		case "pm":
			if hour != 12 {
				hour += 12
			}
		case "am":
			if hour == 12 {
				hour = 0
			}
		}
		if hour > 23 || minute > 59 {
			return fmt.Errorf("invalid time %02d:%02d", hour, minute)
		}
		t := fmt.Sprintf("%02d:%02d", hour, minute)
		if !seen[t] {
			seen[t] = true
			times = append(times, t)
		}
		return nil
	}

	for _, m := range clockRe.FindAllStringSubmatch(text, -1) {
		hour, _ := strconv.Atoi(m[1])
		minute, _ := strconv.Atoi(m[2])
		if err := add(hour, minute, m[3]); err != nil {
			return nil, err
		}
	}
	rest := clockRe.ReplaceAllString(text, " ")
	for _, m := range hourRe.FindAllStringSubmatch(rest, -1) {
		hour, _ := strconv.Atoi(m[1])
		if hour > 12 {
			return nil, fmt.Errorf("invalid time %s%s", m[1], m[2])
		}
		if err := add(hour, 0, m[2]); err != nil {
			return nil, err
		}
	}
	for _, kw := range timeKeywords {
		if strings.Contains(text, kw.word) && !seen[kw.time] {
			seen[kw.time] = true
			times = append(times, kw.time)
		}
	}
	sort.Strings(times)
	return times, nil
}

func phraseDays(text string) []int {
	switch {
	case strings.Contains(text, "weekdays"):
		return []int{1, 2, 3, 4, 5}
	case strings.Contains(text, "weekends"):
		return []int{0, 6}
	}

	set := map[int]bool{}
	for _, word := range strings.FieldsFunc(text, func(r rune) bool {
		return r == ' ' || r == ',' || r == '/'
	}) {
		if d, ok := dayWords[word]; ok {
			set[d] = true
		}
	}
	if len(set) == 0 {
		return []int{0, 1, 2, 3, 4, 5, 6}
	}
	days := make([]int, 0, len(set))
	for d := 0; d < 7; d++ {
		if set[d] {
			days = append(days, d)
		}
	}
	return days
}

func titleCase(s string) string {
	words := strings.Fields(s)
	for i, w := range words {
		words[i] = strings.ToUpper(w[:1]) + w[1:]
	}
	return strings.Join(words, " ")
}
