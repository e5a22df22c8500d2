package spot

import (
	"net/netip"
	"time"

	"dxwatch/pkg/model"
)

// Resolver resolves a spotted callsign to an entity
type Resolver interface {
	Resolve(callsign string) (*model.Resolution, error)
}

// ActivityLookup reports a callsign's confirmation-upload activity
type ActivityLookup interface {
	Status(callsign string, now time.Time) (model.ActivityStatus, time.Time)
}

// NeedChecker reports whether an (entity, band) credit is still missing
type NeedChecker interface {
	IsNeeded(entityID int, band string) bool
}

// GeoLookup resolves a spotter's IP address to a place
type GeoLookup interface {
	Origin(addr netip.Addr) (country, region string, err error)
}

// Enricher joins the resolver, activity cache and challenge state into one
// enrichment step. Geo is optional. Every lookup reads an atomic snapshot,
// so enrichment is safe against concurrent refreshes.
type Enricher struct {
	Resolver Resolver
	Activity ActivityLookup
	Needs    NeedChecker
	Geo      GeoLookup

	now func() time.Time
}

// NewEnricher creates an enricher over the given lookups
func NewEnricher(resolver Resolver, activity ActivityLookup, needs NeedChecker, geo GeoLookup) *Enricher {
	return &Enricher{
		Resolver: resolver,
		Activity: activity,
		Needs:    needs,
		Geo:      geo,
		now:      time.Now,
	}
}

// Enrich annotates a parsed spot. An unresolvable callsign yields a nil
// entity rather than an error; the spot still flows downstream.
func (e *Enricher) Enrich(s model.Spot) model.EnrichedSpot {
	enriched := model.EnrichedSpot{Spot: s}

	if e.Resolver != nil {
		if res, err := e.Resolver.Resolve(s.DXCall); err == nil {
			entity := res.Entity
			entity.CQZone = res.CQZone
			entity.ITUZone = res.ITUZone
			enriched.Entity = &entity
		}
	}

	if e.Activity != nil {
		status, last := e.Activity.Status(s.DXCall, e.now())
		enriched.Activity = status
		enriched.ActivityLabel = status.String()
		enriched.LastUpload = last
	}

	if e.Needs != nil && enriched.Entity != nil {
		enriched.Needed = e.Needs.IsNeeded(enriched.Entity.ID, s.Band)
	}

	if e.Geo != nil && s.SpotterIP.IsValid() {
		if country, region, err := e.Geo.Origin(s.SpotterIP); err == nil {
			enriched.SpotterCountry = country
			enriched.SpotterRegion = region
		}
	}

	return enriched
}

// Sink receives enriched spots in feed order
type Sink func(model.EnrichedSpot)

// Pipeline routes raw feed lines: spots are parsed, enriched and handed to
// the sink; everything else goes to NonSpot when set. One bad line never
// stalls the stream.
type Pipeline struct {
	Parser   *Parser
	Enricher *Enricher
	Sink     Sink
	NonSpot  func(line string)
}

// HandleLine processes one raw line from the cluster session. The returned
// error is informational; the caller keeps reading either way.
func (p *Pipeline) HandleLine(line string) error {
	s, err := p.Parser.ParseLine(line)
	if err != nil {
		return err
	}
	if s == nil {
		if p.NonSpot != nil {
			p.NonSpot(line)
		}
		return nil
	}
	if p.Sink != nil {
		p.Sink(p.Enricher.Enrich(*s))
	}
	return nil
}
