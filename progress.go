package emberon

// Stage names a long-running step reported to a Progress.
type Stage string

const (
	StageCompress   Stage = "compress"
	StageStore      Stage = "store"
	StageDecompress Stage = "decompress"
)

// Progress receives byte counts from the streaming stages. Implementations
// own all display state; the codec only calls into them.
type Progress interface {
	// Begin starts a stage expected to process total bytes.
	Begin(stage Stage, total int64)
	// Advance reports n more bytes processed in the current stage.
	Advance(n int64)
	// End closes the current stage.
	End()
}

type nopProgress struct{}

func (nopProgress) Begin(Stage, int64) {}
func (nopProgress) Advance(int64)      {}
func (nopProgress) End()               {}

// NopProgress discards all progress reports.
var NopProgress Progress = nopProgress{}
