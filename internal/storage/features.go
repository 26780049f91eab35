package storage

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"time"

	"go.etcd.io/bbolt"
)

const featuresBucket = "features"

// FeatureRecord keeps the classifier input of one analysis so labelled
// recordings can later be exported for retraining.
type FeatureRecord struct {
	AnalysisID string    `json:"analysis_id"`
	Timestamp  time.Time `json:"timestamp"`
	Channels   int       `json:"channels"`
	SampleRate float64   `json:"sample_rate"`
	RawLength  int       `json:"raw_length"`
	Vector     []float32 `json:"vector"`
	Class      int       `json:"class"`
	Confidence float64   `json:"confidence"`
}

// SaveFeatures stores a feature record keyed by its analysis ID.
func (s *Store) SaveFeatures(record FeatureRecord) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		b, err := tx.CreateBucketIfNotExists([]byte(featuresBucket))
		if err != nil {
			return fmt.Errorf("create features bucket: %w", err)
		}

		data, err := json.Marshal(record)
		if err != nil {
			return fmt.Errorf("marshal feature record: %w", err)
		}
		return b.Put([]byte(record.AnalysisID), data)
	})
}

// ExportFeaturesCSV writes every stored feature vector, oldest first, as CSV
// with a header row. It returns the number of data rows written.
func (s *Store) ExportFeaturesCSV(w io.Writer) (int, error) {
	cw := csv.NewWriter(w)
	rows := 0
	headerWritten := false

	err := s.db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket([]byte(featuresBucket))
		if b == nil {
			return nil
		}

		return b.ForEach(func(_, v []byte) error {
			var rec FeatureRecord
			if err := json.Unmarshal(v, &rec); err != nil {
				return nil // Skip malformed records
			}

			if !headerWritten {
				header := []string{"analysis_id", "timestamp", "class", "confidence"}
				for i := range rec.Vector {
					header = append(header, "f"+strconv.Itoa(i))
				}
				if err := cw.Write(header); err != nil {
					return err
				}
				headerWritten = true
			}

			row := []string{
				rec.AnalysisID,
				rec.Timestamp.UTC().Format(time.RFC3339Nano),
				strconv.Itoa(rec.Class),
				strconv.FormatFloat(rec.Confidence, 'f', 1, 64),
			}
			for _, f := range rec.Vector {
				row = append(row, strconv.FormatFloat(float64(f), 'g', -1, 32))
			}
			if err := cw.Write(row); err != nil {
				return err
			}
			rows++
			return nil
		})
	})
	if err != nil {
		return rows, fmt.Errorf("export features: %w", err)
	}

	cw.Flush()
	return rows, cw.Error()
}
