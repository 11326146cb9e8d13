package export

import (
	"context"
	"fmt"
	"sort"
	"testing"

	"dpack/internal/archive"
	"dpack/internal/errors"
	"dpack/internal/overlay"
	"dpack/internal/pathtree"
	"dpack/internal/progress"
	"dpack/internal/rename"
	"dpack/internal/testutil"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func openPack(t *testing.T, files ...testutil.File) *archive.Archive {
	a, err := archive.Open(testutil.Zip(t, files...))
	require.NoError(t, err)
	return a
}

func TestBuildPlan(t *testing.T) {
	entries := []pathtree.Entry{
		{Path: "Pack/", IsDir: true},
		{Path: "Pack/b.csv"},
		{Path: "Pack/a.csv"},
		{Path: "Pack/a.csv"},
	}
	roots := pathtree.Build(entries)

	plan := BuildPlan(entries, []string{"Pack/z.png", "Pack/a.csv", "Pack/c.png"}, rename.Detect(roots, "New"))
	assert.Equal(t, []string{"New/", "New/b.csv", "New/a.csv", "New/c.png", "New/z.png"}, plan.Targets())
	assert.Equal(t, "Pack/a.csv", plan.Items[2].Source)
	assert.True(t, plan.Items[2].Edited)
	assert.False(t, plan.Items[1].Edited)
}

func TestExport_ConcreteScenario(t *testing.T) {
	a := openPack(t,
		testutil.File{Name: "Pack/"},
		testutil.File{Name: "Pack/teams.csv", Body: "1,Alpha"},
		testutil.File{Name: "Pack/logos/"},
	)
	store := overlay.NewMemory()
	require.NoError(t, store.Write("Pack/teams.csv", overlay.Text("1,Alpha Rebranded")))

	p := New(a, store, nil, DefaultOptions(), zaptest.NewLogger(t))
	data, err := p.Export(context.Background(), nil)
	require.NoError(t, err)

	names, bodies := testutil.Entries(t, data)
	assert.ElementsMatch(t, []string{"Pack/", "Pack/teams.csv", "Pack/logos/"}, names)
	assert.Equal(t, "1,Alpha Rebranded", bodies["Pack/teams.csv"])
	assert.Equal(t, "", bodies["Pack/logos/"])
}

func TestExport_RoundTripWithoutEdits(t *testing.T) {
	files := []testutil.File{
		{Name: "Pack/"},
		{Name: "Pack/teams.csv", Body: "1,Alpha\n2,Beta"},
		{Name: "Pack/club_logos/"},
		{Name: "Pack/club_logos/1.png", Body: string(testutil.PNG(t, 4, 4))},
		{Name: "Pack/implied/deep/file.txt", Body: "deep"},
	}
	src := testutil.Zip(t, files...)
	a, err := archive.Open(src)
	require.NoError(t, err)

	data, err := New(a, overlay.NewMemory(), nil, DefaultOptions(), nil).Export(context.Background(), nil)
	require.NoError(t, err)

	wantNames, wantBodies := testutil.Entries(t, src)
	gotNames, gotBodies := testutil.Entries(t, data)
	assert.Equal(t, wantNames, gotNames)
	assert.Equal(t, wantBodies, gotBodies)
}

func TestExport_Rename(t *testing.T) {
	a := openPack(t,
		testutil.File{Name: "Old/"},
		testutil.File{Name: "Old/data/teams.csv", Body: "1,Alpha"},
		testutil.File{Name: "Old/logos/"},
	)
	store := overlay.NewMemory()
	require.NoError(t, store.Write("Old/logos/5.png", overlay.Binary([]byte("new-logo"))))

	rw := rename.Detect(pathtree.Build(a.PathEntries()), "New")
	require.True(t, rw.Active())

	data, err := New(a, store, rw, DefaultOptions(), nil).Export(context.Background(), nil)
	require.NoError(t, err)

	names, bodies := testutil.Entries(t, data)
	sort.Strings(names)
	assert.Equal(t, []string{"New/", "New/data/teams.csv", "New/logos/", "New/logos/5.png"}, names)
	assert.Equal(t, "1,Alpha", bodies["New/data/teams.csv"])
	assert.Equal(t, "new-logo", bodies["New/logos/5.png"])
	for _, n := range names {
		assert.NotContains(t, n, "Old/")
	}
}

func TestExport_ProgressIsMonotonicPerPhase(t *testing.T) {
	files := []testutil.File{{Name: "Pack/"}}
	for i := 0; i < 55; i++ {
		files = append(files, testutil.File{Name: fmt.Sprintf("Pack/f%02d.csv", i), Body: "x"})
	}
	a := openPack(t, files...)

	var updates []progress.Update
	_, err := New(a, overlay.NewMemory(), nil, DefaultOptions(), nil).
		Export(context.Background(), func(u progress.Update) { updates = append(updates, u) })
	require.NoError(t, err)

	last := map[progress.Phase]float64{}
	var phases []progress.Phase
	for _, u := range updates {
		assert.GreaterOrEqual(t, u.Percent, last[u.Phase], "phase %s went backwards", u.Phase)
		assert.LessOrEqual(t, u.Percent, 100.0)
		last[u.Phase] = u.Percent
		if len(phases) == 0 || phases[len(phases)-1] != u.Phase {
			phases = append(phases, u.Phase)
		}
	}
	assert.Equal(t, []progress.Phase{progress.PhaseGather, progress.PhaseCompress}, phases)
	assert.Equal(t, 100.0, last[progress.PhaseGather])
	assert.Equal(t, 100.0, last[progress.PhaseCompress])
	assert.Equal(t, "compressing Pack/f54.csv", updates[len(updates)-1].Label)
}

func TestExport_EmptyArchive(t *testing.T) {
	a := openPack(t)

	var updates []progress.Update
	data, err := New(a, overlay.NewMemory(), nil, DefaultOptions(), nil).
		Export(context.Background(), func(u progress.Update) { updates = append(updates, u) })
	require.NoError(t, err)

	names, _ := testutil.Entries(t, data)
	assert.Empty(t, names)
	require.NotEmpty(t, updates)
	assert.Equal(t, 100.0, updates[len(updates)-1].Percent)
}

type failingOriginal struct {
	*archive.Archive
}

func (failingOriginal) ReadFile(context.Context, string) ([]byte, error) {
	return nil, fmt.Errorf("inflate: corrupt input")
}

func TestExport_Failure(t *testing.T) {
	a := openPack(t, testutil.File{Name: "Pack/teams.csv", Body: "1,Alpha"})
	store := overlay.NewMemory()

	data, err := New(failingOriginal{a}, store, nil, DefaultOptions(), nil).Export(context.Background(), nil)
	assert.Nil(t, data)
	assert.True(t, errors.IsType(err, errors.ErrorTypeExportFailed))
	assert.Contains(t, err.Error(), "corrupt input")

	// the overlay stays usable and a retry with the content available succeeds
	require.NoError(t, store.Write("Pack/teams.csv", overlay.Text("fixed")))
	data, err = New(failingOriginal{a}, store, nil, DefaultOptions(), nil).Export(context.Background(), nil)
	require.NoError(t, err)
	_, bodies := testutil.Entries(t, data)
	assert.Equal(t, "fixed", bodies["Pack/teams.csv"])
}

func TestExport_Cancelled(t *testing.T) {
	a := openPack(t, testutil.File{Name: "Pack/teams.csv", Body: "1,Alpha"})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	data, err := New(a, overlay.NewMemory(), nil, DefaultOptions(), nil).Export(ctx, nil)
	assert.Nil(t, data)
	assert.True(t, errors.IsType(err, errors.ErrorTypeExportFailed))
	assert.ErrorIs(t, err, context.Canceled)
}

func manyFiles(n int) []testutil.File {
	files := []testutil.File{{Name: "Pack/"}}
	for i := 0; i < n; i++ {
		files = append(files, testutil.File{
			Name: fmt.Sprintf("Pack/data/%03d.csv", i),
			Body: fmt.Sprintf("%d,Team %d", i, i),
		})
	}
	return files
}

func TestExport_CancelledMidway(t *testing.T) {
	tests := []struct {
		name  string
		phase progress.Phase
		after int
	}{
		{"while gathering", progress.PhaseGather, 5},
		{"while compressing", progress.PhaseCompress, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := openPack(t, manyFiles(60)...)
			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()

			seen := map[progress.Phase]int{}
			onProgress := func(u progress.Update) {
				seen[u.Phase]++
				if u.Phase == tt.phase && seen[u.Phase] == tt.after {
					cancel()
				}
			}

			data, err := New(a, overlay.NewMemory(), nil, DefaultOptions(), nil).Export(ctx, onProgress)
			assert.Nil(t, data)
			assert.True(t, errors.IsType(err, errors.ErrorTypeExportFailed))
			assert.ErrorIs(t, err, context.Canceled)

			if tt.phase == progress.PhaseGather {
				// the next yield point stops the gather before it finishes
				assert.Less(t, seen[progress.PhaseGather], 61)
				assert.Zero(t, seen[progress.PhaseCompress])
			} else {
				assert.Equal(t, 1, seen[progress.PhaseCompress])
			}
		})
	}
}
