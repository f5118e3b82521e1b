package gantt

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func date(year int, month time.Month, day int) time.Time {
	return time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
}

func at(year int, month time.Month, day, hour int) time.Time {
	return time.Date(year, month, day, hour, 0, 0, 0, time.UTC)
}

func TestBuildExtendedWindow(t *testing.T) {
	t.Parallel()

	window := Window{
		Start:      date(2024, 1, 1),
		End:        date(2024, 1, 31),
		Extensions: []time.Time{date(2024, 2, 10)},
	}
	rows := []Row{
		{Author: "bob", Tag: "Feature", SHA: "bbb", Timestamp: at(2024, 1, 20, 9)},
		{Author: "bob", Tag: "", SHA: "aaa", Description: "setup", Timestamp: at(2024, 1, 5, 9)},
	}

	tasks := Build(rows, window, Options{})
	require.Len(t, tasks, 3)

	assert.Equal(t, "aaa", tasks[0].SHA)
	assert.Equal(t, TagUncategorized, tasks[0].Tag)
	assert.Equal(t, at(2024, 1, 5, 9), tasks[0].Start)
	assert.Equal(t, at(2024, 1, 20, 9), tasks[0].End)

	assert.Equal(t, "bbb", tasks[1].SHA)
	assert.Equal(t, at(2024, 1, 20, 9), tasks[1].Start)
	assert.Equal(t, at(2024, 1, 22, 9), tasks[1].End)

	_, windowEnd := window.Bounds()
	assert.Equal(t, time.Date(2024, 2, 10, 23, 59, 59, 0, time.UTC), windowEnd)
	assert.Equal(t, TagIdle, tasks[2].Tag)
	assert.Equal(t, IdleDescription, tasks[2].Description)
	assert.Equal(t, at(2024, 1, 22, 9), tasks[2].Start)
	assert.Equal(t, windowEnd, tasks[2].End)
}

func TestBuildEmptyInput(t *testing.T) {
	t.Parallel()

	window := Window{Start: date(2024, 1, 1), End: date(2024, 1, 31)}
	assert.Empty(t, Build(nil, window, Options{}))
	assert.Empty(t, Build([]Row{{Author: "", Timestamp: at(2024, 1, 2, 0)}, {Author: "x"}}, window, Options{}))
}

func TestBuildDegenerateWindow(t *testing.T) {
	t.Parallel()

	rows := []Row{{Author: "a", Timestamp: at(2024, 1, 2, 0)}}
	assert.Empty(t, Build(rows, Window{Start: date(2024, 2, 1), End: date(2024, 1, 1)}, Options{}))
	assert.Empty(t, Build(rows, Window{}, Options{}))
}

func TestBuildClampsIntoWindow(t *testing.T) {
	t.Parallel()

	window := Window{Start: date(2024, 1, 10), End: date(2024, 1, 12)}
	rows := []Row{
		{Author: "carol", SHA: "early", Timestamp: at(2023, 12, 1, 0)},
		{Author: "carol", SHA: "early2", Timestamp: at(2023, 12, 2, 0)},
		{Author: "carol", SHA: "late", Timestamp: at(2024, 3, 1, 0)},
	}

	tasks := Build(rows, window, Options{})
	windowStart, windowEnd := window.Bounds()

	require.NotEmpty(t, tasks)
	for _, task := range tasks {
		assert.True(t, task.End.After(task.Start), "task %+v has non-positive duration", task)
		assert.False(t, task.Start.Before(windowStart))
		assert.False(t, task.End.After(windowEnd))
	}
	// "late" clamps to the window end and collapses to zero width, so it is dropped.
	for _, task := range tasks {
		assert.NotEqual(t, "late", task.SHA)
	}
}

func TestBuildInvariants(t *testing.T) {
	t.Parallel()

	window := Window{
		Start:      date(2024, 5, 1),
		End:        date(2024, 5, 20),
		Extensions: []time.Time{date(2024, 5, 25), date(2024, 5, 22)},
	}
	rows := []Row{
		{Author: "dave", Timestamp: at(2024, 5, 3, 10)},
		{Author: "dave", Timestamp: at(2024, 5, 3, 10)},
		{Author: "dave", Timestamp: at(2024, 5, 3, 11)},
		{Author: "erin", Timestamp: at(2024, 4, 28, 0)},
		{Author: "erin", Timestamp: at(2024, 5, 24, 23)},
		{Author: "dave", Timestamp: at(2024, 5, 10, 0)},
	}

	tasks := Build(rows, window, Options{Gap: 72 * time.Hour, MinSpan: 2 * time.Hour})
	_, windowEnd := window.Bounds()
	assert.Equal(t, time.Date(2024, 5, 25, 23, 59, 59, 0, time.UTC), windowEnd)

	lastEnd := map[string]time.Time{}
	lastAuthor := ""
	for _, task := range tasks {
		assert.True(t, task.End.After(task.Start), "task %+v has non-positive duration", task)
		assert.False(t, task.End.After(windowEnd), "task %+v exceeds window", task)
		assert.GreaterOrEqual(t, task.Author, lastAuthor)
		if prev, ok := lastEnd[task.Author]; ok {
			assert.False(t, task.Start.Before(prev), "task %+v overlaps previous end %s", task, prev)
		}
		lastEnd[task.Author] = task.End
		lastAuthor = task.Author
	}
	assert.Equal(t, windowEnd, lastEnd["dave"])
	assert.Equal(t, windowEnd, lastEnd["erin"])
}
