package models

// Question is one trivia question with its true answer.
type Question struct {
	Text   string `json:"question" yaml:"question"`
	Answer string `json:"answer" yaml:"answer"`
}

// Preview is a question drawn for the host before it is committed to the session.
// HostOnly tells the presentation layer the data must not be shown to other players.
type Preview struct {
	Question Question `json:"question"`
	HostOnly bool     `json:"hostOnly"`
}
