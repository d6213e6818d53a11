package signal

import (
	"encoding/json"

	"github.com/rs/zerolog/log"

	"github.com/edforge/interview/internal/protocol"
)

// handleToggle announces a media-state change to the rest of the room.
// Best-effort notification, not a negotiated state change.
func (ctl *Controller) handleToggle(st *connState, mediaType string, data []byte) {
	if st.room == "" {
		return
	}
	var p protocol.ToggleMedia
	if err := json.Unmarshal(data, &p); err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("bad toggle payload")
		return
	}
	ctl.broadcast(st.room, st.identity.UserID, protocol.MediaToggled{
		Type:      protocol.TypeMediaToggled,
		UserID:    st.identity.UserID,
		MediaType: mediaType,
		IsEnabled: p.IsEnabled,
	})
	log.Info().Str("module", "signal").Str("user", string(st.identity.UserID)).Str("media", mediaType).Bool("enabled", p.IsEnabled).Msg("media toggled")
}
