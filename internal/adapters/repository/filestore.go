package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/pkg/errors"
	"github.com/sbinet/npyio"
	"gonum.org/v1/gonum/mat"

	"github.com/okian/bsn/internal/domain/model"
)

// Default file layout, relative to the working directory.
const (
	defaultAnnotationFile = "data/activitynet_annotations/anet_anno_action.json"
	defaultTEMDir         = "data/output/TEM_results"
	defaultProposalDir    = "data/output/PGM_proposals"
	defaultFeatureDir     = "data/output/PGM_feature"
	defaultPEMDir         = "data/output/PEM_results"
	defaultEvaluateDir    = "data/evaluate_results"
	defaultPredictDir     = "data/predict_results"

	resultFilePattern = "bsn_results_%s.json"
)

// Column names shared with the TEM, PGM and PEM tables.
const (
	colStart     = "start"
	colEnd       = "end"
	colAction    = "action"
	colXMin      = "xmin"
	colXMax      = "xmax"
	colXMinScore = "xmin_score"
	colXMaxScore = "xmax_score"
	colScore     = "score"
	colIoUScore  = "iou_score"
	colMatchIoU  = "match_iou"
	colMatchIoA  = "match_ioa"
)

var (
	proposalHeader      = []string{colXMin, colXMax, colXMinScore, colXMaxScore, colScore}
	matchedProposalCols = []string{colMatchIoU, colMatchIoA}
)

// FileStore implements Store on a local directory tree. Every per-video file
// is written atomically, so concurrent shards writing different videos never
// interfere.
type FileStore struct {
	annotationFile string
	temDir         string
	proposalDir    string
	featureDir     string
	pemDir         string
	evaluateDir    string
	predictDir     string
}

var _ Store = (*FileStore)(nil)

// NewFileStore creates a FileStore with the default layout overridden by opts.
func NewFileStore(opts ...Option) *FileStore {
	s := &FileStore{
		annotationFile: defaultAnnotationFile,
		temDir:         defaultTEMDir,
		proposalDir:    defaultProposalDir,
		featureDir:     defaultFeatureDir,
		pemDir:         defaultPEMDir,
		evaluateDir:    defaultEvaluateDir,
		predictDir:     defaultPredictDir,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// LoadVideoRecords reads {name: {subset, duration_second, annotations}}.
func (s *FileStore) LoadVideoRecords(ctx context.Context) (map[string]model.VideoRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	raw, err := os.ReadFile(s.annotationFile)
	if err != nil {
		return nil, errors.Wrapf(err, "read annotations %s", s.annotationFile)
	}
	records := make(map[string]model.VideoRecord)
	if err := json.Unmarshal(raw, &records); err != nil {
		return nil, errors.Wrapf(err, "decode annotations %s", s.annotationFile)
	}
	for name, r := range records {
		r.Name = name
		records[name] = r
	}
	return records, nil
}

// ReadBoundaryCurve reads the start, end and action columns of a TEM table.
func (s *FileStore) ReadBoundaryCurve(ctx context.Context, video string) (model.BoundaryCurve, error) {
	if err := ctx.Err(); err != nil {
		return model.BoundaryCurve{}, err
	}
	t, err := readTable(csvPath(s.temDir, video))
	if err != nil {
		return model.BoundaryCurve{}, err
	}
	cols, err := t.columns(colStart, colEnd, colAction)
	if err != nil {
		return model.BoundaryCurve{}, err
	}
	return model.BoundaryCurve{Start: cols[0], End: cols[1], Action: cols[2]}, nil
}

// ReadActionCurve reads the action column of a TEM table; the boundary
// columns may be absent.
func (s *FileStore) ReadActionCurve(ctx context.Context, video string) ([]float64, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	t, err := readTable(csvPath(s.temDir, video))
	if err != nil {
		return nil, err
	}
	cols, err := t.columns(colAction)
	if err != nil {
		return nil, err
	}
	return cols[0], nil
}

// WriteProposals writes xmin, xmax, xmin_score, xmax_score and score, plus
// match_iou and match_ioa when every proposal carries a match.
func (s *FileStore) WriteProposals(ctx context.Context, video string, props []model.Proposal) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	matched := len(props) > 0
	for _, p := range props {
		if p.Match == nil {
			matched = false
			break
		}
	}

	header := proposalHeader
	if matched {
		header = append(append([]string(nil), proposalHeader...), matchedProposalCols...)
	}
	rows := make([][]float64, len(props))
	for i, p := range props {
		row := []float64{p.XMin, p.XMax, p.XMinScore, p.XMaxScore, p.Score}
		if matched {
			row = append(row, p.Match.IoU, p.Match.IoA)
		}
		rows[i] = row
	}
	return writeTable(csvPath(s.proposalDir, video), header, rows)
}

// ReadProposals reads a table written by WriteProposals.
func (s *FileStore) ReadProposals(ctx context.Context, video string) ([]model.Proposal, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	t, err := readTable(csvPath(s.proposalDir, video))
	if err != nil {
		return nil, err
	}
	cols, err := t.columns(proposalHeader...)
	if err != nil {
		return nil, err
	}
	props := make([]model.Proposal, len(cols[0]))
	for i := range props {
		props[i] = model.Proposal{
			XMin:      cols[0][i],
			XMax:      cols[1][i],
			XMinScore: cols[2][i],
			XMaxScore: cols[3][i],
			Score:     cols[4][i],
		}
	}

	if !t.has(colMatchIoU) || !t.has(colMatchIoA) {
		return props, nil
	}
	match, err := t.columns(matchedProposalCols...)
	if err != nil {
		return nil, err
	}
	for i := range props {
		props[i].Match = &model.GTMatch{IoU: match[0][i], IoA: match[1][i]}
	}
	return props, nil
}

// WriteFeatures stores m as <video>.npy.
func (s *FileStore) WriteFeatures(ctx context.Context, video string, m *mat.Dense) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if m == nil || m.IsEmpty() {
		return errors.Wrapf(ErrNoFeatures, "video %s", video)
	}
	return atomicWrite(npyPath(s.featureDir, video), func(w io.Writer) error {
		return npyio.Write(w, m)
	})
}

// ReadFeatures loads <video>.npy.
func (s *FileStore) ReadFeatures(ctx context.Context, video string) (*mat.Dense, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	path := npyPath(s.featureDir, video)
	f, err := os.Open(path) //nolint:gosec // paths come from configured directories
	if err != nil {
		return nil, errors.Wrapf(err, "open %s", path)
	}
	defer func() { _ = f.Close() }()

	var m mat.Dense
	if err := npyio.Read(f, &m); err != nil {
		return nil, errors.Wrapf(err, "decode %s", path)
	}
	return &m, nil
}

// ReadEvaluatedProposals reads xmin, xmax, xmin_score, xmax_score and
// iou_score from a PEM table.
func (s *FileStore) ReadEvaluatedProposals(ctx context.Context, video string) ([]model.Proposal, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	t, err := readTable(csvPath(s.pemDir, video))
	if err != nil {
		return nil, err
	}
	cols, err := t.columns(colXMin, colXMax, colXMinScore, colXMaxScore, colIoUScore)
	if err != nil {
		return nil, err
	}
	props := make([]model.Proposal, len(cols[0]))
	for i := range props {
		props[i] = model.Proposal{
			XMin:      cols[0][i],
			XMax:      cols[1][i],
			XMinScore: cols[2][i],
			XMaxScore: cols[3][i],
			IoUScore:  cols[4][i],
		}
	}
	return props, nil
}

// WriteResults writes the document to the evaluation directory for the
// validation subset and to the prediction directory for the test subset.
func (s *FileStore) WriteResults(ctx context.Context, subset string, doc model.ResultDocument) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	var dir string
	switch subset {
	case model.SubsetValidation:
		dir = s.evaluateDir
	case model.SubsetTest:
		dir = s.predictDir
	default:
		return "", errors.Wrapf(ErrUnknownSubset, "%q", subset)
	}

	path := ResultPath(dir, subset)
	err := atomicWrite(path, func(w io.Writer) error {
		return json.NewEncoder(w).Encode(doc)
	})
	if err != nil {
		return "", err
	}
	return path, nil
}

// ResultPath returns the result document path of a subset inside dir.
func ResultPath(dir, subset string) string {
	return filepath.Join(dir, fmt.Sprintf(resultFilePattern, subset))
}

func csvPath(dir, video string) string { return filepath.Join(dir, video+".csv") }

func npyPath(dir, video string) string { return filepath.Join(dir, video+".npy") }

// WriteVideoRecords writes the annotation file read by LoadVideoRecords.
func (s *FileStore) WriteVideoRecords(ctx context.Context, records map[string]model.VideoRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return atomicWrite(s.annotationFile, func(w io.Writer) error {
		return json.NewEncoder(w).Encode(records)
	})
}

// WriteBoundaryCurve writes a TEM table with action, start and end columns.
func (s *FileStore) WriteBoundaryCurve(ctx context.Context, video string, c model.BoundaryCurve) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if len(c.End) != len(c.Start) || len(c.Action) != len(c.Start) {
		return errors.Wrapf(ErrMalformedTable, "video %s: curves differ in length", video)
	}
	rows := make([][]float64, c.Len())
	for i := range rows {
		rows[i] = []float64{c.Action[i], c.Start[i], c.End[i]}
	}
	return writeTable(csvPath(s.temDir, video), []string{colAction, colStart, colEnd}, rows)
}

// WriteEvaluatedProposals writes a PEM table readable by ReadEvaluatedProposals.
func (s *FileStore) WriteEvaluatedProposals(ctx context.Context, video string, props []model.Proposal) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	rows := make([][]float64, len(props))
	for i, p := range props {
		rows[i] = []float64{p.XMin, p.XMax, p.XMinScore, p.XMaxScore, p.IoUScore}
	}
	return writeTable(csvPath(s.pemDir, video),
		[]string{colXMin, colXMax, colXMinScore, colXMaxScore, colIoUScore}, rows)
}
