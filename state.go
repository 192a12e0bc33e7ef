package spotapi

// Typed views over the connect-state cluster snapshot and the player-state
// pushes off the dealer channel. Absent fields decode to zero values; the
// upstream omits most of them most of the time.

type Metadata struct {
	OriginalSessionID            string `json:"ORIGINAL_SESSION_ID"`
	AlbumTitle                   string `json:"album_title"`
	ImageXLargeURL               string `json:"image_xlarge_url"`
	ActionsSkippingNextPastTrack string `json:"actions_skipping_next_past_track"`
	InteractionID                string `json:"interaction_id"`
	Title                        string `json:"title"`
	ArtistURI                    string `json:"artist_uri"`
	ImageURL                     string `json:"image_url"`
	EntityURI                    string `json:"entity_uri"`
	ImageLargeURL                string `json:"image_large_url"`
	Iteration                    string `json:"iteration"`
	ActionsSkippingPrevPastTrack string `json:"actions_skipping_prev_past_track"`
	PageInstanceID               string `json:"page_instance_id"`
	AlbumURI                     string `json:"album_uri"`
	ImageSmallURL                string `json:"image_small_url"`
	TrackPlayer                  string `json:"track_player"`
	ContextURI                   string `json:"context_uri"`
}

type Track struct {
	URI      string    `json:"uri"`
	UID      string    `json:"uid"`
	Metadata *Metadata `json:"metadata"`
	Provider string    `json:"provider"`
}

type Index struct {
	Page  int `json:"page"`
	Track int `json:"track"`
}

type PlayOrigin struct {
	FeatureIdentifier  string `json:"feature_identifier"`
	FeatureVersion     string `json:"feature_version"`
	ReferrerIdentifier string `json:"referrer_identifier"`
	DeviceIdentifier   string `json:"device_identifier"`
}

type Restrictions struct {
	DisallowResumingReasons             []string `json:"disallow_resuming_reasons"`
	DisallowSettingPlaybackSpeedReasons []string `json:"disallow_setting_playback_speed_reasons"`
}

type Options struct {
	ShufflingContext bool `json:"shuffling_context"`
	RepeatingContext bool `json:"repeating_context"`
	RepeatingTrack   bool `json:"repeating_track"`
}

type PlaybackQuality struct {
	BitrateLevel           string `json:"bitrate_level"`
	Strategy               string `json:"strategy"`
	TargetBitrateLevel     string `json:"target_bitrate_level"`
	TargetBitrateAvailable bool   `json:"target_bitrate_available"`
}

type ContextMetadata struct {
	ImageURL                 string `json:"image_url"`
	ContextDescription       string `json:"context_description"`
	ContextOwner             string `json:"context_owner"`
	PlaylistNumberOfTracks   string `json:"playlist_number_of_tracks"`
	PlaylistNumberOfEpisodes string `json:"playlist_number_of_episodes"`
	PlayerArch               string `json:"player_arch"`
}

// PlayerState is the playback snapshot. Numeric-looking fields like
// timestamp, position and duration arrive as JSON strings.
type PlayerState struct {
	Timestamp             string            `json:"timestamp"`
	ContextURI            string            `json:"context_uri"`
	ContextURL            string            `json:"context_url"`
	ContextRestrictions   map[string]string `json:"context_restrictions"`
	PlayOrigin            *PlayOrigin       `json:"play_origin"`
	Index                 *Index            `json:"index"`
	Track                 *Track            `json:"track"`
	PlaybackID            string            `json:"playback_id"`
	PlaybackSpeed         float64           `json:"playback_speed"`
	PositionAsOfTimestamp string            `json:"position_as_of_timestamp"`
	Duration              string            `json:"duration"`
	IsPlaying             bool              `json:"is_playing"`
	IsPaused              bool              `json:"is_paused"`
	IsSystemInitiated     bool              `json:"is_system_initiated"`
	Options               *Options          `json:"options"`
	Restrictions          *Restrictions     `json:"restrictions"`
	Suppressions          map[string]any    `json:"suppressions"`
	PrevTracks            []Track           `json:"prev_tracks"`
	NextTracks            []Track           `json:"next_tracks"`
	ContextMetadata       *ContextMetadata  `json:"context_metadata"`
	PageMetadata          map[string]any    `json:"page_metadata"`
	SessionID             string            `json:"session_id"`
	QueueRevision         string            `json:"queue_revision"`
	PlaybackQuality       *PlaybackQuality  `json:"playback_quality"`
}

type Hifi struct {
	DeviceSupported bool `json:"device_supported"`
}

type AudioOutputDeviceInfo struct {
	AudioOutputDeviceType string `json:"audio_output_device_type"`
	DeviceName            string `json:"device_name"`
}

type Capabilities struct {
	CanBePlayer                bool     `json:"can_be_player"`
	GaiaEqConnectID            bool     `json:"gaia_eq_connect_id"`
	SupportsLogout             bool     `json:"supports_logout"`
	IsObservable               bool     `json:"is_observable"`
	VolumeSteps                int      `json:"volume_steps"`
	SupportedTypes             []string `json:"supported_types"`
	CommandAcks                bool     `json:"command_acks"`
	IsControllable             bool     `json:"is_controllable"`
	SupportsExternalEpisodes   bool     `json:"supports_external_episodes"`
	SupportsCommandRequest     bool     `json:"supports_command_request"`
	SupportsSetOptionsCommand  bool     `json:"supports_set_options_command"`
	SupportsHifi               *Hifi    `json:"supports_hifi"`
	SupportedAudioQuality      string   `json:"supported_audio_quality"`
	SupportsPlaybackSpeed      bool     `json:"supports_playback_speed"`
	SupportsRename             bool     `json:"supports_rename"`
	SupportsPlaylistV2         bool     `json:"supports_playlist_v2"`
	SupportsSetBackendMetadata bool     `json:"supports_set_backend_metadata"`
	SupportsTransferCommand    bool     `json:"supports_transfer_command"`
	SupportsGzipPushes         bool     `json:"supports_gzip_pushes"`
	SupportsDJ                 bool     `json:"supports_dj"`
}

type MetadataMap struct {
	DeviceAddressMask string `json:"device_address_mask"`
	DebugLevel        string `json:"debug_level"`
	Tier1Port         string `json:"tier1_port"`
}

type Device struct {
	CanPlay               bool                   `json:"can_play"`
	Volume                int                    `json:"volume"`
	Name                  string                 `json:"name"`
	Capabilities          *Capabilities          `json:"capabilities"`
	DeviceSoftwareVersion string                 `json:"device_software_version"`
	DeviceType            string                 `json:"device_type"`
	DeviceID              string                 `json:"device_id"`
	ClientID              string                 `json:"client_id"`
	Brand                 string                 `json:"brand"`
	Model                 string                 `json:"model"`
	PublicIP              string                 `json:"public_ip"`
	License               string                 `json:"license"`
	SpircVersion          string                 `json:"spirc_version"`
	MetadataMap           *MetadataMap           `json:"metadata_map"`
	AudioOutputDeviceInfo *AudioOutputDeviceInfo `json:"audio_output_device_info"`
}

// ClusterDump is the connect-state response: the full player state plus
// every device in the cluster keyed by device id.
type ClusterDump struct {
	PlayerState    *PlayerState      `json:"player_state"`
	Devices        map[string]Device `json:"devices"`
	ActiveDeviceID string            `json:"active_device_id"`
}
