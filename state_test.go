package spotapi

import (
	"encoding/json"
	"testing"
)

const sampleClusterJSON = `{
	"player_state": {
		"timestamp": "1714321000000",
		"context_uri": "spotify:playlist:37i9dQZF1DXcBWIGoYBM5M",
		"is_playing": true,
		"is_paused": false,
		"playback_speed": 1,
		"position_as_of_timestamp": "152000",
		"duration": "211000",
		"track": {
			"uri": "spotify:track:4uLU6hMCjMI75M1A2tKUQC",
			"uid": "a1b2c3",
			"provider": "context",
			"metadata": {
				"title": "Never Gonna Give You Up",
				"artist_uri": "spotify:artist:0gxyHStUsqpMadRV0Di1Qt",
				"album_title": "Whenever You Need Somebody",
				"image_url": "spotify:image:ab67616d"
			}
		},
		"index": {"page": 0, "track": 7},
		"options": {"shuffling_context": true, "repeating_context": false},
		"prev_tracks": [{"uri": "spotify:track:prev1"}, {"uri": "spotify:track:prev2"}],
		"next_tracks": [{"uri": "spotify:track:next1"}],
		"queue_revision": "rev-12",
		"playback_quality": {"bitrate_level": "high", "strategy": "best_matching"}
	},
	"devices": {
		"dev-a": {
			"can_play": true,
			"volume": 43690,
			"name": "Web Player (Chrome)",
			"device_type": "computer",
			"device_id": "dev-a",
			"capabilities": {
				"can_be_player": true,
				"is_observable": true,
				"volume_steps": 64,
				"supported_types": ["audio/track", "audio/episode"],
				"supports_hifi": {"device_supported": false}
			}
		}
	},
	"active_device_id": "dev-a"
}`

func TestClusterDumpDecode(t *testing.T) {
	var dump ClusterDump
	if err := json.Unmarshal([]byte(sampleClusterJSON), &dump); err != nil {
		t.Fatalf("decode failed: %v", err)
	}

	state := dump.PlayerState
	if state == nil {
		t.Fatal("player state missing")
	}
	if !state.IsPlaying || state.IsPaused {
		t.Errorf("playing flags = %v/%v, want true/false", state.IsPlaying, state.IsPaused)
	}
	if state.Track == nil || state.Track.Metadata == nil {
		t.Fatal("track metadata missing")
	}
	if state.Track.Metadata.Title != "Never Gonna Give You Up" {
		t.Errorf("title = %q", state.Track.Metadata.Title)
	}
	if state.Index == nil || state.Index.Track != 7 {
		t.Errorf("index = %+v, want track 7", state.Index)
	}
	if len(state.PrevTracks) != 2 || len(state.NextTracks) != 1 {
		t.Errorf("history = %d prev / %d next, want 2/1", len(state.PrevTracks), len(state.NextTracks))
	}
	if state.Duration != "211000" {
		t.Errorf("duration = %q, want string-typed 211000", state.Duration)
	}

	device, ok := dump.Devices["dev-a"]
	if !ok {
		t.Fatal("device dev-a missing")
	}
	if device.Capabilities == nil || device.Capabilities.VolumeSteps != 64 {
		t.Errorf("capabilities = %+v, want volume_steps 64", device.Capabilities)
	}
	if device.Capabilities.SupportsHifi == nil || device.Capabilities.SupportsHifi.DeviceSupported {
		t.Errorf("hifi = %+v, want device_supported false", device.Capabilities.SupportsHifi)
	}
	if dump.ActiveDeviceID != "dev-a" {
		t.Errorf("active device = %q, want dev-a", dump.ActiveDeviceID)
	}
}

func TestPlayerStateAbsentFieldsDefault(t *testing.T) {
	var state PlayerState
	if err := json.Unmarshal([]byte(`{"is_playing": true}`), &state); err != nil {
		t.Fatalf("decode failed: %v", err)
	}

	if state.Track != nil || state.Options != nil || state.Restrictions != nil {
		t.Error("absent nested objects should stay nil")
	}
	if state.PrevTracks != nil || state.NextTracks != nil {
		t.Error("absent track lists should stay nil")
	}
	if state.Timestamp != "" || state.PlaybackSpeed != 0 {
		t.Error("absent scalars should stay zero")
	}
}
