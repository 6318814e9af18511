package pipeline

import (
	"context"

	"github.com/signalsfoundry/swath-geolocator/core"
	"github.com/signalsfoundry/swath-geolocator/model"
	"github.com/signalsfoundry/swath-geolocator/projector"
)

// ArchiveReader supplies one raw scene.
type ArchiveReader interface {
	ReadScene(ctx context.Context) (*model.Scene, error)
}

// ElevationSource returns terrain height in metres, shaped like lons.
type ElevationSource interface {
	Elevation(lons, lats *model.Grid) (*model.Grid, error)
}

// ReferenceSource renders the co-registration reference onto a target
// grid. Cells it does not cover are NaN.
type ReferenceSource interface {
	Resample(spec projector.GridSpec, zone core.Zone) (*model.Grid, error)
}

// ProductWriter persists one product. Implementations must not leave a
// product that looks complete when the write fails. DeleteProduct removes
// whatever exists of a product and succeeds when nothing does.
type ProductWriter interface {
	WriteProduct(ctx context.Context, name string, p *model.Product) error
	DeleteProduct(ctx context.Context, name string) error
}
