package models

type Icon string

const (
	IconSync              Icon = "sync"
	IconCloseCircle       Icon = "close-circle"
	IconCheckCircle       Icon = "check-circle"
	IconExclamationCircle Icon = "exclamation-circle"
	IconLoading           Icon = "loading"
)

type TagColor string

const (
	TagGreen TagColor = "green"
	TagRed   TagColor = "red"
	TagGray  TagColor = "gray"
)

const UnknownStatusText = "Unknown"

// StatusStyle is how a status code is drawn: an icon for the list column and
// a colored tag for the expanded row.
type StatusStyle struct {
	Icon      Icon
	IconColor string
	Spin      bool
	Color     TagColor
	Text      string
}

var statusTable = map[JobStatus]StatusStyle{
	JobImageBuilding:       {Icon: IconSync, Spin: true, Color: TagGreen, Text: "Image Building"},
	JobImageBuildingFailed: {Icon: IconCloseCircle, IconColor: "red", Color: TagRed, Text: "Image Building Failed"},
	JobStartingExecutor:    {Icon: IconSync, Spin: true, Color: TagGreen, Text: "Starting Executor"},
	JobRunningExecutor:     {Icon: IconSync, Spin: true, Color: TagGreen, Text: "Running Executor"},
	JobFinished:            {Icon: IconCheckCircle, IconColor: "green", Color: TagGreen, Text: "Finished"},
	JobExecutorKilled:      {Icon: IconCloseCircle, IconColor: "red", Color: TagRed, Text: "Executor Killed"},
	JobExecutorFailed:      {Icon: IconCloseCircle, IconColor: "red", Color: TagRed, Text: "Executor Failed"},
	JobStatusUnknown:       {Icon: IconExclamationCircle, IconColor: "#ffcd00", Color: TagGray, Text: "Unknown"},
	JobLaunchFailed:        {Icon: IconCloseCircle, IconColor: "red", Color: TagRed, Text: "Launch Failed"},
}

// LookupStatus returns the style for a known status code. The second result
// is false for codes outside the table.
func LookupStatus(s JobStatus) (StatusStyle, bool) {
	style, ok := statusTable[s]
	return style, ok
}

// StatusIcon returns the list-column icon, falling back to the loading
// indicator for unknown codes.
func StatusIcon(s JobStatus) Icon {
	if style, ok := statusTable[s]; ok {
		return style.Icon
	}
	return IconLoading
}

// StatusTag returns the tag color and text, falling back to gray "Unknown".
func StatusTag(s JobStatus) (TagColor, string) {
	if style, ok := statusTable[s]; ok {
		return style.Color, style.Text
	}
	return TagGray, UnknownStatusText
}
