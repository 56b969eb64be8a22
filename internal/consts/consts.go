// Package consts defines application-wide constants.
package consts

import "time"

const (
	// DefaultPollInterval is the idle wait of the worker when the FIFO is empty.
	DefaultPollInterval = 500 * time.Millisecond
	// DefaultShutdownTimeout bounds the worker join on shutdown.
	DefaultShutdownTimeout = 5 * time.Second
	// DefaultProgressFreq is how often the engine reports progress.
	DefaultProgressFreq = 200 * time.Millisecond
	// DefaultSimulateTime is the default duration of one simulated item in the mock engine.
	DefaultSimulateTime = 1 * time.Second
	// DefaultInfoPlaylistLimit caps playlist entries returned by an info fetch.
	DefaultInfoPlaylistLimit = 500
)

// Task defaults.
const (
	// DefaultTaskTitle is used when a task is added without a title.
	DefaultTaskTitle = "Untitled Download"
	// DefaultFilename is the sanitized name used when nothing usable remains.
	DefaultFilename = "downloaded_file"
	// DefaultMergeFormat is the container used when merging video and audio.
	DefaultMergeFormat = "mp4"
)

// Format choices.
const (
	// FormatAudioMP3 selects best audio converted to mp3.
	FormatAudioMP3 = "Download Audio Only (MP3)"
	// FormatBestVideo selects the best available video with audio.
	FormatBestVideo = "Best Video (MP4)"
	// AudioCodecMP3 is the codec requested from the audio extraction stage.
	AudioCodecMP3 = "mp3"
	// AudioQualityMP3 is the mp3 bitrate in kbps.
	AudioQualityMP3 = "192"
)

// Postprocessor names as reported by the engine.
const (
	PPMerger       = "FFmpegMerger"
	PPExtractAudio = "FFmpegExtractAudio"
	PPVideoConvert = "FFmpegVideoConvertor"
	PPMoveFiles    = "MoveFiles"
)

const (
	// ExtractorYTTab is the extractor key of playlist-capable channel and playlist pages.
	ExtractorYTTab = "YoutubeTab"
	// EngineErrPrefix precedes the meaningful part of engine error messages.
	EngineErrPrefix = "ERROR:"
)

// Download status messages.
const (
	MsgStartingDownload = "Starting download..."
	MsgConnecting       = "Connecting..."
	MsgDownloadingVideo = "Downloading Video"
	MsgProcessingFile   = "Processing downloaded file..."
	MsgFinalProcessing  = "Final processing..."
	MsgMerging          = "Merging video and audio..."
	MsgConvertingMP3    = "Converting to MP3..."
	MsgExtractingAudio  = "Extracting audio (%s)..."
	MsgConvertingVideo  = "Converting video format..."
	MsgOrganizingFiles  = "Organizing final files..."
	MsgProcessingWithPP = "Processing with %s..."
	MsgProcessingPrefix = "Processing: "
	MsgCompletedPrefix  = "Completed: "
	MsgCalculating      = "Calculating..."
	MsgUnknownSize      = "Unknown size"
	MsgEngineError      = "Error during download/processing reported by yt-dlp."
	MsgDownloadError    = "Download Error: %s"
	MsgMoveFailed       = "Warning: Could not move '%s'. Error: %v"
	MsgFFmpegMissing    = "Warning: FFmpeg needed for conversion but not found. Process might fail or download original format."
	MsgFFprobeMissing   = "Warning: ffprobe might be missing. Some features may not work."
	MsgDownloadCanceled = "Download Cancelled."
	MsgUnexpectedError  = "Unexpected Error: %s"
	MsgPartialPlaylist  = "%d of %d items finished. %s"
)

// Queue API messages.
const (
	MsgTaskRequired      = "Error: URL and Save Path are required for download task."
	MsgTaskAdded         = "Added to queue: %s"
	MsgTaskCancelled     = "Cancelled"
	MsgTaskCancelling    = "Cancelling..."
	MsgTaskCompleted     = "Completed"
	MsgTaskFailed        = "Error: %s"
	MsgFetchBusy         = "Error: Fetch Info is already in progress."
	MsgFetchURLRequired  = "Error: URL is required to fetch information."
	MsgFetching          = "Fetching information..."
	MsgFetched           = "Information fetched successfully."
	MsgFetchCancelled    = "Info fetch cancelled"
	MsgFetchFailed       = "Could not fetch information: %s"
	MsgFetchUnexpected   = "An unexpected error occurred during info fetch: %s"
	MsgEmptyPlaylist     = "Playlist is empty, private, or could not be accessed."
	MsgInvalidInfo       = "Could not retrieve information (URL might be invalid or video unavailable)."
	MsgLinksPreparing    = "Preparing to fetch links..."
	MsgLinksFetching     = "Fetching links (Format: %s)..."
	MsgLinksFetched      = "Fetched %d links."
	MsgLinksCancelled    = "Link fetching cancelled."
	MsgLinksBusy         = "Error: Link fetching is already in progress."
	MsgLinksEmpty        = "yt-dlp returned successfully but found no links. Playlist might be empty, private, or requires login."
	MsgLinksBinaryAbsent = "'yt-dlp' command not found. Please ensure it is installed and accessible."
	MsgLinksFailed       = "yt-dlp Error: %s"
)

// FinalMediaExtensions are the extensions that mark a finished media artifact.
var FinalMediaExtensions = map[string]struct{}{
	".mp4":  {},
	".mp3":  {},
	".mkv":  {},
	".webm": {},
	".opus": {},
	".ogg":  {},
	".m4a":  {},
	".flv":  {},
	".avi":  {},
	".wav":  {},
}

// Engine identifiers.
const (
	// EngineYTdlp is the yt-dlp engine identifier.
	EngineYTdlp = "ytdlp"
	// EngineMock is the mock engine identifier for testing.
	EngineMock = "mock"
)

const (
	// DefaultHandlerTimeout is the default timeout for HTTP handlers.
	DefaultHandlerTimeout = 30 * time.Second
	// EventStreamBuffer is how many events one /events client may lag behind before events are dropped.
	EventStreamBuffer = 64
)

// HTTP response messages.
const (
	RespInvalidRequestBody  = "invalid request body"
	RespUnprocessableEntity = "unprocessable entity"
	RespServiceClosed       = "service is shutting down"
	RespTaskEnqueued        = "task enqueued"
	RespTaskEnqueueFail     = "task enqueue failed"
	RespTaskRetrieved       = "task retrieved"
	RespTasksRetrieved      = "tasks retrieved"
	RespTaskNotFound        = "task not found"
	RespTaskCancel          = "cancel requested"
	RespTasksPruned         = "finished tasks pruned"
	RespFetchStarted        = "fetch started"
	RespFetchBusy           = "fetch already in progress"
	RespFetchFail           = "fetch could not start"
	RespFetchCancel         = "fetch cancel requested"
	RespStreamUnsupported   = "streaming unsupported"
)
