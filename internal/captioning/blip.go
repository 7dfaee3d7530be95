package captioning

import (
	"context"
	"fmt"
	"math"
	"path/filepath"
	"runtime"
	"sort"

	"github.com/gammazero/workerpool"
	"go.uber.org/zap"
	"gonum.org/v1/gonum/mat"

	"github.com/xplain-ai/xplain-server/internal/utils/hashutil"
)

const FamilyBlip = "blip"

func init() {
	Register(FamilyBlip, LoadBlipCaptioner)
}

// blipCaptioner generates captions from a finetuned BLIP export. The
// export format pairs the vision projection with tied token embeddings
// and a recurrent text state; decoding is beam search with no sampling.
type blipCaptioner struct {
	manifest  *Manifest
	tokenizer *Tokenizer

	visionProj *mat.Dense    // [hidden, 3·grid²]
	tokenEmbed *mat.Dense    // [vocab, hidden]
	recur      *mat.Dense    // [hidden, hidden]
	bias       *mat.VecDense // [vocab]

	params      DecodeParams
	fingerprint string
	logger      *zap.Logger
}

// LoadBlipCaptioner reads manifest, vocabulary and weights from the
// resolved model directory exactly once. Corrupt or incompatible
// artifacts are load errors and abort startup.
func LoadBlipCaptioner(dir string, params DecodeParams, logger *zap.Logger) (Captioner, error) {
	manifest, err := LoadManifest(dir)
	if err != nil {
		return nil, err
	}

	tokenizer, err := LoadTokenizer(filepath.Join(dir, VocabularyFilename))
	if err != nil {
		return nil, err
	}

	weightsPath := filepath.Join(dir, WeightsFilename)
	tensors, err := readTensors(weightsPath)
	if err != nil {
		return nil, err
	}

	featDim := 3 * manifest.PoolGrid * manifest.PoolGrid
	vocab := tokenizer.VocabSize()

	proj, err := matrixTensor(tensors, "vision.proj", manifest.HiddenSize, featDim)
	if err != nil {
		return nil, err
	}
	hidden := proj.shape[0]

	embed, err := matrixTensor(tensors, "text.embed", vocab, hidden)
	if err != nil {
		return nil, err
	}
	recur, err := matrixTensor(tensors, "text.recur", hidden, hidden)
	if err != nil {
		return nil, err
	}
	bias, err := vectorTensor(tensors, "text.bias", vocab)
	if err != nil {
		return nil, err
	}

	if manifest.BOSTokenID >= vocab || manifest.EOSTokenID >= vocab {
		return nil, fmt.Errorf("bos/eos token ids exceed vocabulary size %d", vocab)
	}

	fingerprint, err := hashutil.Blake3HashFiles(
		filepath.Join(dir, ManifestFilename), weightsPath)
	if err != nil {
		return nil, fmt.Errorf("failed to fingerprint model artifacts: %w", err)
	}

	c := &blipCaptioner{
		manifest:    manifest,
		tokenizer:   tokenizer,
		visionProj:  mat.NewDense(hidden, featDim, proj.data),
		tokenEmbed:  mat.NewDense(vocab, hidden, embed.data),
		recur:       mat.NewDense(hidden, hidden, recur.data),
		bias:        mat.NewVecDense(vocab, bias.data),
		params:      params,
		fingerprint: fingerprint,
		logger:      logger,
	}

	logger.Info("captioner loaded",
		zap.String("family", FamilyBlip),
		zap.String("dir", dir),
		zap.Int("hidden_size", hidden),
		zap.Int("vocab_size", vocab),
		zap.String("fingerprint", fingerprint),
	)

	return c, nil
}

func (c *blipCaptioner) Family() string { return FamilyBlip }

func (c *blipCaptioner) Fingerprint() string { return c.fingerprint }

func (c *blipCaptioner) Caption(ctx context.Context, image []byte) (string, error) {
	img, err := decodeImage(image)
	if err != nil {
		return "", err
	}

	features := pooledFeatures(img, c.manifest.ImageSize, c.manifest.PoolGrid)
	ids, err := c.generate(ctx, features)
	if err != nil {
		return "", err
	}

	return c.tokenizer.Decode(ids), nil
}

// CaptionBatch captions N images as one logical unit, fanning out over a
// worker pool. The batch fails atomically: if any input cannot be
// captioned, the whole call returns a BatchItemError naming the lowest
// failing position and no partial results.
func (c *blipCaptioner) CaptionBatch(ctx context.Context, images [][]byte) ([]CaptionResult, error) {
	results := make([]CaptionResult, len(images))
	if len(images) == 0 {
		return results, nil
	}

	errs := make([]error, len(images))
	wp := workerpool.New(min(len(images), runtime.NumCPU()))

	for i, image := range images {
		i, image := i, image
		wp.Submit(func() {
			caption, err := c.Caption(ctx, image)
			if err != nil {
				errs[i] = err
				return
			}
			results[i] = CaptionResult{Caption: caption, SourceIndex: i}
		})
	}
	wp.StopWait()

	for i, err := range errs {
		if err != nil {
			return nil, &BatchItemError{Index: i, Err: err}
		}
	}

	return results, nil
}

// beam is one decoding hypothesis. Finished beams keep competing on
// score but are no longer expanded.
type beam struct {
	ids   []int
	h     *mat.VecDense
	score float64
	done  bool
}

// generate runs deterministic beam search: fixed beam width, fixed token
// budget, ties broken by token id, no randomness anywhere.
func (c *blipCaptioner) generate(ctx context.Context, features []float64) ([]int, error) {
	h0 := new(mat.VecDense)
	h0.MulVec(c.visionProj, mat.NewVecDense(len(features), features))
	tanhInPlace(h0)

	beams := []*beam{{ids: []int{c.manifest.BOSTokenID}, h: h0}}

	for step := 0; step < c.params.MaxNewTokens; step++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		live := false
		var candidates []*beam
		for _, b := range beams {
			if b.done {
				candidates = append(candidates, b)
				continue
			}
			live = true

			logProbs := c.nextLogProbs(b.h)
			for _, tok := range topTokens(logProbs, c.params.BeamSize) {
				next := &beam{
					ids:   append(append([]int(nil), b.ids...), tok),
					score: b.score + logProbs[tok],
				}
				if tok == c.manifest.EOSTokenID {
					next.done = true
				} else {
					next.h = c.nextHidden(b.h, tok)
				}
				candidates = append(candidates, next)
			}
		}
		if !live {
			break
		}

		sortBeams(candidates)
		if len(candidates) > c.params.BeamSize {
			candidates = candidates[:c.params.BeamSize]
		}
		beams = candidates
	}

	sortBeams(beams)
	return beams[0].ids, nil
}

// nextLogProbs scores every vocabulary token against the current hidden
// state: log-softmax of E·h + b.
func (c *blipCaptioner) nextLogProbs(h *mat.VecDense) []float64 {
	logits := new(mat.VecDense)
	logits.MulVec(c.tokenEmbed, h)
	logits.AddVec(logits, c.bias)

	raw := logits.RawVector().Data
	maxLogit := math.Inf(-1)
	for _, v := range raw {
		maxLogit = math.Max(maxLogit, v)
	}

	var sum float64
	for _, v := range raw {
		sum += math.Exp(v - maxLogit)
	}
	logSum := math.Log(sum)

	logProbs := make([]float64, len(raw))
	for i, v := range raw {
		logProbs[i] = v - maxLogit - logSum
	}
	return logProbs
}

func (c *blipCaptioner) nextHidden(h *mat.VecDense, tok int) *mat.VecDense {
	next := new(mat.VecDense)
	next.MulVec(c.recur, h)
	next.AddVec(next, c.tokenEmbed.RowView(tok))
	tanhInPlace(next)
	return next
}

// topTokens returns the k best token ids, ties resolved toward the lower
// id so decoding stays reproducible.
func topTokens(logProbs []float64, k int) []int {
	ids := make([]int, len(logProbs))
	for i := range ids {
		ids[i] = i
	}

	sort.Slice(ids, func(a, b int) bool {
		if logProbs[ids[a]] != logProbs[ids[b]] {
			return logProbs[ids[a]] > logProbs[ids[b]]
		}
		return ids[a] < ids[b]
	})

	if len(ids) > k {
		ids = ids[:k]
	}
	return ids
}

func sortBeams(beams []*beam) {
	sort.SliceStable(beams, func(a, b int) bool {
		if beams[a].score != beams[b].score {
			return beams[a].score > beams[b].score
		}
		return lessTokens(beams[a].ids, beams[b].ids)
	})
}

func lessTokens(a, b []int) bool {
	for i := 0; i < len(a) && i < len(b); i++ {
		if a[i] != b[i] {
			return a[i] < b[i]
		}
	}
	return len(a) < len(b)
}

func tanhInPlace(v *mat.VecDense) {
	raw := v.RawVector().Data
	for i, x := range raw {
		raw[i] = math.Tanh(x)
	}
}
