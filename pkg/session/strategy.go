package session

import (
	"github.com/nearbeam/nearbeam/pkg/errs"
	"github.com/nearbeam/nearbeam/pkg/peer"
	"github.com/nearbeam/nearbeam/pkg/transport"
)

// autoPreference orders the media by throughput; the Auto policy walks it
// and picks the first medium that is both available and enabled.
var autoPreference = []peer.Kind{peer.LocalWirelessGroup, peer.ShortRangeRadio}

// selectTransport resolves a requested kind to a concrete transport. The
// choice is made once at discovery start and stays fixed for the session.
// An explicit medium is used as-is with no fallback; Auto falls back down
// the preference order and fails with Unsupported when nothing qualifies.
func (c *Coordinator) selectTransport(kind peer.Kind) (transport.Transport, *errs.Error) {
	if kind == peer.Auto {
		for _, k := range autoPreference {
			tr, ok := c.transports[k]
			if ok && tr.Available() && tr.Enabled() {
				return tr, nil
			}
		}
		return nil, errs.New(errs.Unsupported, "no transfer medium is available and enabled")
	}

	tr, ok := c.transports[kind]
	if !ok {
		return nil, errs.New(errs.Unsupported, "no transport registered for medium "+kind.String())
	}
	if !tr.Available() || !tr.Enabled() {
		return nil, errs.New(errs.Unsupported, kind.String()+" medium is unavailable or disabled")
	}
	return tr, nil
}
