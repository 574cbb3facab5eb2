// Package sdk is a Go client for the qanoneed legal consultation API.
//
//	client, _ := sdk.New("http://localhost:8080", sdk.WithAPIKey(key))
//	answer, _ := client.Chat(ctx, "ما هي مدة الإشعار بإنهاء عقد العمل؟")
//
// Streaming delivers the whole answer as a single event:
//
//	err := client.Stream(ctx, question, func(event, data string) {
//	    fmt.Println(data)
//	})
//
// Non-2xx responses are returned as *APIError; use errors.As to read the
// status code and the server's Arabic detail message.
package sdk
