package google

// DefaultOAuthScopes are requested during the consent handshake.
//
// Only the calendar scope is used by this service. The others are kept so a
// single session keeps working for the dashboard's mail, drive, docs and
// tasks views.
var DefaultOAuthScopes = []string{
	"https://www.googleapis.com/auth/gmail.modify",
	"https://www.googleapis.com/auth/calendar",
	// Drive and Docs back the document export and summarization views.
	"https://www.googleapis.com/auth/drive",
	"https://www.googleapis.com/auth/documents.readonly",
	"https://www.googleapis.com/auth/tasks",
}
