package spot

import (
	"encoding/xml"
	"time"
)

// MessageType classifies a feed message for flight logging
type MessageType int

const (
	TypeOther MessageType = iota
	TypeTakeoff
	TypeLanding
)

func (t MessageType) String() string {
	switch t {
	case TypeTakeoff:
		return "takeoff"
	case TypeLanding:
		return "landing"
	default:
		return "other"
	}
}

// Message is one tracker message as delivered by the feed
type Message struct {
	ID            string
	Type          MessageType
	RawType       string // messageType as sent by the feed (e.g. "OK", "CUSTOM")
	TimestampUTC  time.Time
	Latitude      float64
	Longitude     float64
	BatteryLevel  string
	MessengerName string
}

// feedResponse mirrors the XML document returned by the public feed API:
//
//	<response>
//	  <feedMessageResponse>
//	    <count>2</count>
//	    <messages><message>...</message></messages>
//	  </feedMessageResponse>
//	</response>
//
// or, when the request fails or has nothing to show:
//
//	<response><errors><error><code>E-0195</code>...</error></errors></response>
type feedResponse struct {
	XMLName             xml.Name             `xml:"response"`
	FeedMessageResponse *feedMessageResponse `xml:"feedMessageResponse"`
	Errors              []feedError          `xml:"errors>error"`
}

type feedMessageResponse struct {
	Count      int          `xml:"count"`
	TotalCount int          `xml:"totalCount"`
	Messages   []xmlMessage `xml:"messages>message"`
}

type xmlMessage struct {
	ID            string  `xml:"id"`
	MessengerID   string  `xml:"messengerId"`
	MessengerName string  `xml:"messengerName"`
	UnixTime      int64   `xml:"unixTime"`
	MessageType   string  `xml:"messageType"`
	Latitude      float64 `xml:"latitude"`
	Longitude     float64 `xml:"longitude"`
	DateTime      string  `xml:"dateTime"`
	BatteryState  string  `xml:"batteryState"`
	Altitude      int     `xml:"altitude"`
}

type feedError struct {
	Code        string `xml:"code"`
	Text        string `xml:"text"`
	Description string `xml:"description"`
}

// codeNoMessages is reported by the feed when the requested window is empty
const codeNoMessages = "E-0195"
