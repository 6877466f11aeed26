package period

import (
	"testing"
	"time"
)

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func set(keys ...string) map[string]struct{} {
	s := make(map[string]struct{}, len(keys))
	for _, k := range keys {
		s[k] = struct{}{}
	}
	return s
}

func TestParseCadence(t *testing.T) {
	for _, valid := range []string{"daily", "weekly", "monthly"} {
		c, err := ParseCadence(valid)
		if err != nil {
			t.Errorf("ParseCadence(%q): %v", valid, err)
		}
		if string(c) != valid {
			t.Errorf("ParseCadence(%q) = %q", valid, c)
		}
	}
	for _, invalid := range []string{"", "hourly", "Daily", "yearly"} {
		if _, err := ParseCadence(invalid); err == nil {
			t.Errorf("ParseCadence(%q): expected error", invalid)
		}
	}
}

func TestKeyFormats(t *testing.T) {
	d := date(2024, time.January, 15) // a Monday, ISO week 2024-W03
	if got := Key(d, Daily); got != "2024-01-15" {
		t.Errorf("daily key = %q, want 2024-01-15", got)
	}
	if got := Key(d, Weekly); got != "2024-W03" {
		t.Errorf("weekly key = %q, want 2024-W03", got)
	}
	if got := Key(d, Monthly); got != "2024-01" {
		t.Errorf("monthly key = %q, want 2024-01", got)
	}
}

func TestKeyISOWeekYearBoundary(t *testing.T) {
	// 2024-12-30 and 2025-01-05 are both in ISO week 2025-W01;
	// 2021-01-01 falls in 2020-W53.
	if got := Key(date(2024, time.December, 30), Weekly); got != "2025-W01" {
		t.Errorf("key = %q, want 2025-W01", got)
	}
	if got := Key(date(2025, time.January, 5), Weekly); got != "2025-W01" {
		t.Errorf("key = %q, want 2025-W01", got)
	}
	if got := Key(date(2021, time.January, 1), Weekly); got != "2020-W53" {
		t.Errorf("key = %q, want 2020-W53", got)
	}
}

func TestKeySameISOWeek(t *testing.T) {
	// Monday through Sunday of one ISO week all share a key.
	monday := date(2024, time.January, 15)
	want := Key(monday, Weekly)
	for i := 1; i < 7; i++ {
		d := monday.AddDate(0, 0, i)
		if got := Key(d, Weekly); got != want {
			t.Errorf("Key(%s) = %q, want %q", d.Format("2006-01-02"), got, want)
		}
	}
	// The next Monday starts a new week.
	if got := Key(monday.AddDate(0, 0, 7), Weekly); got == want {
		t.Errorf("next Monday should not share key %q", want)
	}
}

func TestKeyMonotonic(t *testing.T) {
	start := date(2023, time.November, 20)
	for _, c := range []Cadence{Daily, Weekly, Monthly} {
		last := ""
		for i := 0; i < 120; i++ {
			key := Key(start.AddDate(0, 0, i), c)
			if key < last {
				t.Errorf("%s: key %q < previous %q", c, key, last)
			}
			last = key
		}
	}
}

func TestKeyInvalidCadencePanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Error("expected panic for invalid cadence")
		}
	}()
	Key(date(2024, time.January, 1), Cadence("hourly"))
}

func TestStreakEmpty(t *testing.T) {
	today := date(2024, time.January, 15)
	for _, c := range []Cadence{Daily, Weekly, Monthly} {
		if got := CurrentStreak(nil, c, today); got != 0 {
			t.Errorf("%s: streak of empty set = %d, want 0", c, got)
		}
	}
}

func TestStreakDaily(t *testing.T) {
	today := date(2024, time.January, 15)
	done := set("2024-01-13", "2024-01-14", "2024-01-15")
	if got := CurrentStreak(done, Daily, today); got != 3 {
		t.Errorf("streak = %d, want 3", got)
	}
}

func TestStreakTodayUnmarked(t *testing.T) {
	// A prior run does not count if today's period is incomplete.
	today := date(2024, time.January, 15)
	done := set("2024-01-13", "2024-01-14")
	if got := CurrentStreak(done, Daily, today); got != 0 {
		t.Errorf("streak = %d, want 0", got)
	}
}

func TestStreakGapBreaksChain(t *testing.T) {
	today := date(2024, time.January, 15)
	done := set("2024-01-15", "2024-01-14", "2024-01-12", "2024-01-11")
	if got := CurrentStreak(done, Daily, today); got != 2 {
		t.Errorf("streak = %d, want 2", got)
	}
}

func TestStreakWeekly(t *testing.T) {
	// 2024-01-17 is a Wednesday in ISO week 2024-W03.
	today := date(2024, time.January, 17)
	done := set("2024-W01", "2024-W02")
	if got := CurrentStreak(done, Weekly, today); got != 0 {
		t.Errorf("streak without current week = %d, want 0", got)
	}
	done["2024-W03"] = struct{}{}
	if got := CurrentStreak(done, Weekly, today); got != 3 {
		t.Errorf("streak = %d, want 3", got)
	}
}

func TestStreakWeeklyAcrossYearBoundary(t *testing.T) {
	// 2025-01-08 is in 2025-W02; previous weeks are 2025-W01 and 2024-W52.
	today := date(2025, time.January, 8)
	done := set("2025-W02", "2025-W01", "2024-W52")
	if got := CurrentStreak(done, Weekly, today); got != 3 {
		t.Errorf("streak = %d, want 3", got)
	}
}

func TestStreakMonthly(t *testing.T) {
	today := date(2024, time.March, 10)
	done := set("2024-01", "2024-02", "2024-03")
	if got := CurrentStreak(done, Monthly, today); got != 3 {
		t.Errorf("streak = %d, want 3", got)
	}
	delete(done, "2024-02")
	if got := CurrentStreak(done, Monthly, today); got != 1 {
		t.Errorf("streak after gap = %d, want 1", got)
	}
}

func TestStreakMonthlyYearRollover(t *testing.T) {
	today := date(2024, time.January, 31)
	done := set("2024-01", "2023-12", "2023-11")
	if got := CurrentStreak(done, Monthly, today); got != 3 {
		t.Errorf("streak = %d, want 3", got)
	}
}

func TestStreakMonthlyShortMonthCursor(t *testing.T) {
	// Walking back from Mar 31 must land in February, not skip to January.
	today := date(2024, time.March, 31)
	done := set("2024-03", "2024-02")
	if got := CurrentStreak(done, Monthly, today); got != 2 {
		t.Errorf("streak = %d, want 2", got)
	}
}

func TestStreakIgnoresMalformedKeys(t *testing.T) {
	// Keys that are not canonical for the cadence can never match the walk.
	today := date(2024, time.January, 15)
	done := set("2024-01-15", "01/14/2024", "2024-W03")
	if got := CurrentStreak(done, Daily, today); got != 1 {
		t.Errorf("streak = %d, want 1", got)
	}
}

func TestWindowSummaryOnlyToday(t *testing.T) {
	today := date(2024, time.January, 15)
	done := set("2024-01-15")

	entries := WindowSummary(done, Daily, today, 7)
	if len(entries) != 7 {
		t.Fatalf("len = %d, want 7", len(entries))
	}
	for i := 0; i < 6; i++ {
		if entries[i].Completed {
			t.Errorf("entries[%d].Completed = true, want false", i)
		}
	}
	if !entries[6].Completed {
		t.Error("entries[6].Completed = false, want true")
	}
	if entries[6].Key != "2024-01-15" {
		t.Errorf("entries[6].Key = %q, want 2024-01-15", entries[6].Key)
	}
	if entries[0].Key != "2024-01-09" {
		t.Errorf("entries[0].Key = %q, want 2024-01-09", entries[0].Key)
	}
}

func TestWindowSummaryWeeklyLabels(t *testing.T) {
	today := date(2024, time.January, 17) // 2024-W03
	entries := WindowSummary(nil, Weekly, today, 4)
	wantKeys := []string{"2023-W52", "2024-W01", "2024-W02", "2024-W03"}
	wantLabels := []string{"W52", "W01", "W02", "W03"}
	for i := range entries {
		if entries[i].Key != wantKeys[i] {
			t.Errorf("entries[%d].Key = %q, want %q", i, entries[i].Key, wantKeys[i])
		}
		if entries[i].Label != wantLabels[i] {
			t.Errorf("entries[%d].Label = %q, want %q", i, entries[i].Label, wantLabels[i])
		}
	}
}

func TestRate(t *testing.T) {
	today := date(2024, time.January, 15)
	done := set("2024-01-15", "2024-01-13")

	entries := WindowSummary(done, Daily, today, 4)
	if got := Rate(entries); got != 0.5 {
		t.Errorf("rate = %v, want 0.5", got)
	}
	if got := Rate(nil); got != 0 {
		t.Errorf("rate of empty = %v, want 0", got)
	}
}
