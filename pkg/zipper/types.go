package zipper

import (
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
)

var (
	// ErrInvalidAxis is returned for an axis selector other than AxisRow or AxisColumn.
	ErrInvalidAxis = errors.New("zipper: axis must be 1 (rows) or 2 (columns)")
	// ErrInvalidParams is returned when Params fail validation.
	ErrInvalidParams = errors.New("zipper: invalid parameters")
	// ErrShapeMismatch is returned when image and mask dimensions disagree.
	ErrShapeMismatch = errors.New("zipper: image and mask shapes differ")
	// ErrInconsistentRuns signals that run starts and ends could not be paired.
	// It indicates a defect in run detection, not bad input.
	ErrInconsistentRuns = errors.New("zipper: run starts and ends do not pair up")
)

// Axis selects the scan direction of a pass.
type Axis int

const (
	// AxisRow scans across columns within each row; runs are horizontal.
	AxisRow Axis = 1
	// AxisColumn scans down rows within each column; runs are vertical.
	AxisColumn Axis = 2
)

func (a Axis) String() string {
	switch a {
	case AxisRow:
		return "rows"
	case AxisColumn:
		return "columns"
	default:
		return fmt.Sprintf("Axis(%d)", int(a))
	}
}

// Variant selects how the representative value of a run is computed.
type Variant int

const (
	// VariantBasic averages the literal neighbour pixel on each usable side.
	VariantBasic Variant = iota
	// VariantWindowed takes the median of the non-zero pixels in a window on
	// each usable side, falling back to the mean when all of them are zero.
	VariantWindowed
)

func (v Variant) String() string {
	switch v {
	case VariantBasic:
		return "basic"
	case VariantWindowed:
		return "windowed"
	default:
		return "unknown"
	}
}

// MarshalText implements encoding.TextMarshaler.
func (v Variant) MarshalText() ([]byte, error) {
	switch v {
	case VariantBasic, VariantWindowed:
		return []byte(v.String()), nil
	}
	return nil, fmt.Errorf("unknown variant %d", int(v))
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (v *Variant) UnmarshalText(text []byte) error {
	switch string(text) {
	case "basic", "":
		*v = VariantBasic
	case "windowed", "median":
		*v = VariantWindowed
	default:
		return fmt.Errorf("unknown variant %q", text)
	}
	return nil
}

// Image is a row-major 2D grid of pixel values.
type Image struct {
	Rows int
	Cols int
	Pix  []float32
}

// NewImage allocates a zero-filled image.
func NewImage(rows, cols int) *Image {
	return &Image{Rows: rows, Cols: cols, Pix: make([]float32, rows*cols)}
}

// At returns the pixel at (row, col).
func (im *Image) At(row, col int) float32 { return im.Pix[row*im.Cols+col] }

// Set stores v at (row, col).
func (im *Image) Set(row, col int, v float32) { im.Pix[row*im.Cols+col] = v }

// Clone returns a deep copy.
func (im *Image) Clone() *Image {
	out := &Image{Rows: im.Rows, Cols: im.Cols, Pix: make([]float32, len(im.Pix))}
	copy(out.Pix, im.Pix)
	return out
}

// Mask is a row-major 2D grid of bit flags with the same shape as an Image.
type Mask struct {
	Rows int
	Cols int
	Bits []uint32
}

// NewMask allocates a mask with no bits set.
func NewMask(rows, cols int) *Mask {
	return &Mask{Rows: rows, Cols: cols, Bits: make([]uint32, rows*cols)}
}

// At returns the bits at (row, col).
func (m *Mask) At(row, col int) uint32 { return m.Bits[row*m.Cols+col] }

// Set stores bits at (row, col).
func (m *Mask) Set(row, col int, bits uint32) { m.Bits[row*m.Cols+col] = bits }

// Clone returns a deep copy.
func (m *Mask) Clone() *Mask {
	out := &Mask{Rows: m.Rows, Cols: m.Cols, Bits: make([]uint32, len(m.Bits))}
	copy(out.Bits, m.Bits)
	return out
}

// Run is a maximal span of flagged pixels on one line of the scan axis.
// Line is the row (AxisRow) or column (AxisColumn) index; [Start, End) is
// the span along the axis.
type Run struct {
	Line  int
	Start int
	End   int

	// Set by neighbour resolution. "Before" is the left (rows) or top
	// (columns) side.
	HasBefore   bool
	HasAfter    bool
	BeforeValue float32
	AfterValue  float32

	// Set by synthesis: the representative value and the written span,
	// which differs from [Start, End) when dilating.
	Value      float64
	WriteStart int
	WriteEnd   int
}

// Len returns the number of pixels in the run.
func (r Run) Len() int { return r.End - r.Start }

// Params configures an interpolation pass.
type Params struct {
	Variant Variant `yaml:"variant"`
	// BadpixInterp is OR-ed into the output mask of every rewritten pixel.
	// Zero disables output flagging.
	BadpixInterp uint32 `yaml:"badpix_interp"`
	// InvalidMask marks pixels that may not serve as a neighbour value.
	// Only honoured when scanning rows.
	InvalidMask  uint32 `yaml:"invalid_mask"`
	MinRunLength int    `yaml:"min_run_length"`
	// MaxRunLength of zero means no upper bound.
	MaxRunLength int `yaml:"max_run_length"`
	// Block is the depth of the sampling window along the scan axis
	// (xblock for rows, yblock for columns). Windowed variant only.
	Block int `yaml:"block"`
	// CrossBlock is the half-width of the sampling window across the scan
	// axis (yblock for rows, xblock for columns). Windowed variant only.
	CrossBlock int `yaml:"cross_block"`
	// Dilate widens every written span by this many pixels on both ends.
	Dilate         int     `yaml:"dilate"`
	AddNoise       bool    `yaml:"add_noise"`
	NoiseThreshold float64 `yaml:"noise_threshold"`
	NoiseSeed      uint64  `yaml:"noise_seed"`
	// RegionFile, when set, receives one "line x1 y1 x2 y2" record per
	// written span.
	RegionFile string `yaml:"region_file"`

	// Noise overrides the generator seeded from NoiseSeed.
	Noise  rand.Source  `yaml:"-"`
	Logger *slog.Logger `yaml:"-"`
}

// NewParams creates Params with default values.
func NewParams() *Params {
	return &Params{
		Variant:        VariantBasic,
		MinRunLength:   1,
		MaxRunLength:   0,
		Block:          1,
		CrossBlock:     0,
		Dilate:         0,
		AddNoise:       false,
		NoiseThreshold: 1.0,
	}
}

// Validate checks the parameters for consistency.
func (p *Params) Validate() error {
	if p.Variant != VariantBasic && p.Variant != VariantWindowed {
		return fmt.Errorf("%w: unknown variant %d", ErrInvalidParams, int(p.Variant))
	}
	if p.MinRunLength < 1 {
		return fmt.Errorf("%w: min_run_length must be >= 1, got %d", ErrInvalidParams, p.MinRunLength)
	}
	if p.MaxRunLength < 0 {
		return fmt.Errorf("%w: max_run_length must be >= 0, got %d", ErrInvalidParams, p.MaxRunLength)
	}
	if p.MaxRunLength > 0 && p.MaxRunLength < p.MinRunLength {
		return fmt.Errorf("%w: max_run_length %d is below min_run_length %d", ErrInvalidParams, p.MaxRunLength, p.MinRunLength)
	}
	if p.Block < 1 {
		return fmt.Errorf("%w: block must be >= 1, got %d", ErrInvalidParams, p.Block)
	}
	if p.CrossBlock < 0 {
		return fmt.Errorf("%w: cross_block must be >= 0, got %d", ErrInvalidParams, p.CrossBlock)
	}
	if p.Dilate < 0 {
		return fmt.Errorf("%w: dilate must be >= 0, got %d", ErrInvalidParams, p.Dilate)
	}
	if p.NoiseThreshold < 0 {
		return fmt.Errorf("%w: noise_threshold must be >= 0, got %f", ErrInvalidParams, p.NoiseThreshold)
	}
	return nil
}

func (p *Params) logger() *slog.Logger {
	if p.Logger != nil {
		return p.Logger
	}
	return slog.Default()
}

// Stats counts what happened during a pass.
type Stats struct {
	Detected          int
	OnBorder          int
	OutOfRange        int
	NoNeighbors       int
	Interpolated      int
	PixelsWritten     int
	DegenerateSamples int
	NoisyRuns         int
}

// Result is the output of an interpolation pass. Image and Mask are always
// fresh buffers; the caller's inputs are left untouched.
type Result struct {
	Image *Image
	Mask  *Mask
	// Runs holds the interpolated runs in scan order.
	Runs  []Run
	Stats Stats
}
