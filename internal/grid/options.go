package grid

import (
	"net/url"
	"time"

	"go.uber.org/zap"

	"github.com/five82/gridder/internal/behavior"
	"github.com/five82/gridder/internal/crud"
	"github.com/five82/gridder/internal/grouping"
	"github.com/five82/gridder/internal/notify"
	"github.com/five82/gridder/internal/prefs"
	"github.com/five82/gridder/internal/state"
	"github.com/five82/gridder/internal/urlstate"
)

const defaultSearchDebounce = 300 * time.Millisecond

// Initial is a result obtained before the grid was built (for example by a
// warm-up fetch). It is applied without a first request when Endpoint equals
// the grid's own resolved API URL.
type Initial struct {
	Endpoint string
	Page     crud.Page
}

// Options configure a Grid.
type Options struct {
	// Resource names the API collection, e.g. "articles".
	Resource string
	// Endpoint is the list URL. Empty means "/<Resource>" under the client base.
	Endpoint string
	Fetcher  crud.Fetcher

	// Columns are the declared columns in default order. When empty they are
	// taken from the schema via ApplySchema.
	Columns []string
	IDField string

	PerPage         int
	DefaultViewMode state.ViewMode

	Behaviors behavior.Set
	Grouping  *grouping.Engine

	Store    prefs.Store
	Location url.Values
	Limits   urlstate.Limits

	Notifier notify.Notifier
	Logger   *zap.Logger

	SearchDebounce time.Duration
	// PreserveSelection keeps selected rows across page changes.
	PreserveSelection bool

	Initial *Initial
}

func (o Options) withDefaults() Options {
	if o.Endpoint == "" {
		o.Endpoint = "/" + o.Resource
	}
	if o.IDField == "" {
		o.IDField = "id"
	}
	if o.PerPage <= 0 {
		o.PerPage = 25
	}
	if !o.DefaultViewMode.Valid() {
		o.DefaultViewMode = state.ViewFlat
	}
	if o.Grouping == nil {
		o.Grouping = &grouping.Engine{}
	}
	if o.Limits == (urlstate.Limits{}) {
		o.Limits = urlstate.DefaultLimits
	}
	if o.Logger == nil {
		o.Logger = zap.NewNop()
	}
	if o.SearchDebounce <= 0 {
		o.SearchDebounce = defaultSearchDebounce
	}
	o.Behaviors = o.Behaviors.WithDefaults()
	return o
}
