// Package bridge exposes a layer stack to a foreign shell over bytes.
//
// A shell cannot hold Go pointers, so every request handed out is given a
// numeric id and kept in a Registry until it can no longer be resolved:
//   - Once requests are removed after their resolution succeeds
//   - Many requests keep their id across resolutions until the owning task
//     is gone, and are evicted at the next Update after that
//   - Never requests (notifications) are evicted at the next Update
//
// Events, outputs and views cross the boundary encoded by a Codec. When a
// Recorder is configured, every event, issued request and resolution is
// appended to a request log under the bridge's session id.
package bridge
