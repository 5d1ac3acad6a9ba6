package ocr

import (
	"context"
	"log/slog"
	"sort"
	"strings"

	"github.com/cardledger/cardintake/internal/models"
	"github.com/cardledger/cardintake/internal/teach"
)

// DefaultMaxWidth matches the width the token service downsizes photos to.
const DefaultMaxWidth = 1024

// RegionAdapter reads text inside taught regions: each bound region's field
// receives the tokens whose centre falls inside it, in reading order.
type RegionAdapter struct {
	Client        *TokenClient
	MaxWidth      int
	MinConfidence float64
}

// NewRegionAdapter creates a region adapter over a token OCR client
func NewRegionAdapter(client *TokenClient) *RegionAdapter {
	return &RegionAdapter{
		Client:        client,
		MaxWidth:      DefaultMaxWidth,
		MinConfidence: DefaultVisionMinConfidence,
	}
}

// Suggest runs token OCR on every photo that has taught regions.
func (a *RegionAdapter) Suggest(ctx context.Context, req Request) (*Response, error) {
	photos := make(map[string]Photo)
	var images []TokenImage
	for _, p := range req.Photos {
		if len(req.Regions[p.Side]) == 0 {
			continue
		}
		img, ok := imageFromPhoto(p)
		if !ok {
			continue
		}
		photos[img.ID] = p
		images = append(images, img)
	}

	out := &Response{
		Status:     StatusReady,
		Fields:     make(map[models.Field]string),
		Confidence: make(map[models.Field]float64),
	}
	if len(images) == 0 {
		if len(req.Photos) == 0 {
			return nil, ErrNotReady
		}
		out.normalize()
		return out, nil
	}

	ocrResp, err := a.Client.Recognize(ctx, images)
	if err != nil {
		return nil, err
	}

	for _, result := range ocrResp.Results {
		p, ok := photos[result.ID]
		if !ok {
			continue
		}
		status := "ok"
		if strings.TrimSpace(result.Text) == "" {
			status = "empty"
		}
		out.Audit = append(out.Audit, PhotoAudit{
			Side:       p.Side,
			PhotoID:    p.PhotoID,
			TextLength: len(result.Text),
			Status:     status,
		})

		w, h := a.frame(p, result.Tokens)
		for _, region := range req.Regions[p.Side] {
			if region.Field == "" {
				continue
			}
			text, conf, ok := TokensInRegion(result.Tokens, region, w, h)
			if !ok {
				continue
			}
			if prev, seen := out.Confidence[region.Field]; seen && prev >= conf {
				continue
			}
			out.Fields[region.Field] = text
			out.Confidence[region.Field] = conf
		}
	}

	if !req.LowConfidence {
		for f, c := range out.Confidence {
			if c < a.MinConfidence {
				delete(out.Fields, f)
				delete(out.Confidence, f)
			}
		}
	}
	out.normalize()

	slog.Debug("Read taught regions", "card_id", req.CardID, "photos", len(images), "fields", len(out.Fields))
	return out, nil
}

// frame returns the pixel size of the image as the token service saw it.
// Without known photo dimensions the token extent stands in.
func (a *RegionAdapter) frame(p Photo, tokens []Token) (float64, float64) {
	if p.Width > 0 && p.Height > 0 {
		w, h := float64(p.Width), float64(p.Height)
		if a.MaxWidth > 0 && w > float64(a.MaxWidth) {
			ratio := float64(a.MaxWidth) / w
			w = float64(a.MaxWidth)
			h = float64(int(h * ratio))
		}
		return w, h
	}
	var maxX, maxY float64
	for _, t := range tokens {
		for _, pt := range t.BBox {
			if pt.X > maxX {
				maxX = pt.X
			}
			if pt.Y > maxY {
				maxY = pt.Y
			}
		}
	}
	return maxX, maxY
}

// TokensInRegion joins, in reading order, the tokens whose bbox centre lies
// in region, and averages their confidence. Coordinates are pixels of a
// width by height frame.
func TokensInRegion(tokens []Token, region teach.Region, width, height float64) (string, float64, bool) {
	if width <= 0 || height <= 0 {
		return "", 0, false
	}
	type placed struct {
		token Token
		x, y  float64
	}
	var inside []placed
	for _, t := range tokens {
		if strings.TrimSpace(t.Text) == "" {
			continue
		}
		cx, cy, ok := t.Center()
		if !ok {
			continue
		}
		nx, ny := cx/width, cy/height
		if region.Contains(nx, ny) {
			inside = append(inside, placed{token: t, x: nx, y: ny})
		}
	}
	if len(inside) == 0 {
		return "", 0, false
	}

	sort.SliceStable(inside, func(i, j int) bool {
		if inside[i].y != inside[j].y {
			return inside[i].y < inside[j].y
		}
		return inside[i].x < inside[j].x
	})

	parts := make([]string, 0, len(inside))
	var sum float64
	for _, p := range inside {
		parts = append(parts, strings.TrimSpace(p.token.Text))
		sum += p.token.Confidence
	}
	return strings.Join(parts, " "), sum / float64(len(inside)), true
}
