package types

import (
	"errors"
	"time"
)

var ErrPhotoNotFound = errors.New("photo not found")

// Photo represents an uploaded photo with the precomputed fields this
// subsystem consumes. The embedding is produced by an external
// model-inference collaborator and may be absent.
type Photo struct {
	ID        uint64    `bun:",pk"                 json:"id"`
	OwnerID   uint64    `bun:",notnull"            json:"ownerId"`
	Embedding []float64 `bun:",nullzero,type:jsonb" json:"embedding"`
	ISO       *float64  `bun:",nullzero"           json:"iso"`
	Aperture  *float64  `bun:",nullzero"           json:"aperture"`
	FocalLen  *float64  `bun:",nullzero"           json:"focalLength"`
	Exposure  *float64  `bun:",nullzero"           json:"exposure"`
	Latitude  *float64  `bun:",nullzero"           json:"latitude"`
	Longitude *float64  `bun:",nullzero"           json:"longitude"`
	CreatedAt time.Time `bun:",notnull"            json:"createdAt"`
}

// HasEmbedding reports whether the photo carries a usable embedding vector.
func (p *Photo) HasEmbedding() bool {
	return len(p.Embedding) > 0
}

// HasLocation reports whether the photo carries coordinates.
func (p *Photo) HasLocation() bool {
	return p.Latitude != nil && p.Longitude != nil
}

// HasExif reports whether at least one numeric EXIF field is present.
func (p *Photo) HasExif() bool {
	return p.ISO != nil || p.Aperture != nil || p.FocalLen != nil || p.Exposure != nil
}

// HasAnySignal reports whether the photo has any comparable signal at all.
// A photo with neither embedding nor EXIF nor location cannot be scored and
// is excluded from similarity results.
func (p *Photo) HasAnySignal() bool {
	return p.HasEmbedding() || p.HasExif() || p.HasLocation()
}
