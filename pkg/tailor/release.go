package tailor

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/xrsl/tailor/pkg/agents"
	clog "github.com/xrsl/tailor/pkg/log"
	"github.com/xrsl/tailor/pkg/pipeline"
	"github.com/xrsl/tailor/pkg/prune"
	"github.com/xrsl/tailor/pkg/utils"
)

// Manifest describes the released documents of a run.
type Manifest struct {
	RunID     string     `json:"run_id"`
	CreatedAt time.Time  `json:"created_at"`
	Succeeded []string   `json:"succeeded"`
	Failed    []string   `json:"failed"`
	Documents []Released `json:"documents"`
}

// Released is one document written to the release directory.
type Released struct {
	Posting  string          `json:"posting"`
	Document agents.Document `json:"document"`
	Path     string          `json:"path"`
	Version  int             `json:"version"`
	Length   int             `json:"length"`
	Target   int             `json:"target_length"`
	State    prune.State     `json:"state"`
}

// ReleaseDir returns the release directory of a run directory.
func ReleaseDir(runDir string) string {
	return filepath.Join(runDir, "release")
}

func (e *execution) versionsDir() string {
	return filepath.Join(e.runDir, "versions")
}

// release writes the final document of every processed posting and the
// manifest.
func (e *execution) release(run pipeline.Run) (Manifest, error) {
	pruned, err := pipeline.Output[map[string]Pruned](run, pipeline.StagePruning)
	if err != nil {
		return Manifest{}, err
	}
	dir := ReleaseDir(e.runDir)
	m := Manifest{
		RunID:     run.ID,
		CreatedAt: time.Now().UTC(),
		Succeeded: run.Active(),
		Failed:    append([]string{}, run.Failed...),
	}
	for _, id := range m.Succeeded {
		for _, doc := range agents.Documents {
			res, ok := pruned[id][doc]
			if !ok {
				return Manifest{}, fmt.Errorf("no pruned %s for %s", doc, id)
			}
			rel := filepath.Join(id, string(doc)+".md")
			if err := utils.WriteFile(filepath.Join(dir, rel), res.Content); err != nil {
				return Manifest{}, err
			}
			m.Documents = append(m.Documents, Released{
				Posting:  id,
				Document: doc,
				Path:     rel,
				Version:  res.Version,
				Length:   res.Length,
				Target:   res.Target,
				State:    res.State,
			})
		}
	}
	if err := utils.WriteJSONOnce(filepath.Join(dir, "manifest.json"), m); err != nil {
		return Manifest{}, err
	}
	clog.Info("run released", "run", run.ID, "dir", dir, "documents", len(m.Documents))
	return m, nil
}

// LoadManifest reads the manifest of a released run.
func LoadManifest(runDir string) (Manifest, error) {
	var m Manifest
	err := utils.ReadJSON(filepath.Join(ReleaseDir(runDir), "manifest.json"), &m)
	return m, err
}
