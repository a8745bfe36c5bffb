package models

// AlertMessage is the payload handed to the alert dispatcher.
type AlertMessage struct {
	Title string
	Body  string
}
