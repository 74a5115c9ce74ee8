package rest

import (
	"fmt"
	"net/http"

	"github.com/disgoorg/snowflake/v2"
)

// Route couples a concrete request path with the template and major
// parameter that identify its rate-limit bucket. Two requests to
// different channels never share a bucket; two requests to different
// minor resources under the same channel do.
type Route struct {
	Method string
	Path   string
	key    string
	major  string
}

// Bucket is the opaque rate-limit bucket key for this route.
func (r Route) Bucket() string {
	return r.Method + ":" + r.major + ":" + r.key
}

func channelRoute(method string, channelID snowflake.ID, format string, a ...any) Route {
	return Route{
		Method: method,
		Path:   fmt.Sprintf("/channels/%s"+format, append([]any{channelID}, a...)...),
		key:    "/channels/{channel_id}" + format,
		major:  channelID.String(),
	}
}

func GetGateway() Route {
	return Route{Method: http.MethodGet, Path: "/gateway", key: "/gateway"}
}

func EditChannel(channelID snowflake.ID) Route {
	return channelRoute(http.MethodPatch, channelID, "")
}

func DeleteChannel(channelID snowflake.ID) Route {
	return channelRoute(http.MethodDelete, channelID, "")
}

func JoinThread(threadID snowflake.ID) Route {
	return channelRoute(http.MethodPut, threadID, "/thread-members/@me")
}

func LeaveThread(threadID snowflake.ID) Route {
	return channelRoute(http.MethodDelete, threadID, "/thread-members/@me")
}

func AddThreadMember(threadID, userID snowflake.ID) Route {
	return channelRoute(http.MethodPut, threadID, "/thread-members/%s", userID)
}

func RemoveThreadMember(threadID, userID snowflake.ID) Route {
	return channelRoute(http.MethodDelete, threadID, "/thread-members/%s", userID)
}

func CreateMessage(channelID snowflake.ID) Route {
	return channelRoute(http.MethodPost, channelID, "/messages")
}

func ChannelMessages(channelID snowflake.ID, limit int, before snowflake.ID) Route {
	r := channelRoute(http.MethodGet, channelID, "/messages")
	r.Path = fmt.Sprintf("%s?limit=%d", r.Path, limit)
	if before != 0 {
		r.Path = fmt.Sprintf("%s&before=%s", r.Path, before)
	}
	return r
}

func DeleteMessage(channelID, messageID snowflake.ID) Route {
	return channelRoute(http.MethodDelete, channelID, "/messages/%s", messageID)
}
