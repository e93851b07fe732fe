package domain

type PluginDescriptor struct {
	Name  string `json:"name"`
	Group string `json:"group"`
	Path  string `json:"path"`
}

// ScanReport summarizes one scan. Clean is false when the scanner finished
// with an error; blacklist entries recorded during the scan still apply.
type ScanReport struct {
	Clean       bool     `json:"clean"`
	Found       int      `json:"found"`
	Blacklisted []string `json:"blacklisted,omitempty"`
}
