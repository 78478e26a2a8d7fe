// Package extract pulls candidate tracking resources out of mail bodies.
//
// HTML is parsed with goquery and every element that makes a mail client
// fetch something is recorded as a model.Link with a role:
//
//   - image: <img src>, with the declared width and height
//   - media: any other element carrying src (script, iframe, video, ...)
//   - import: <link href>
//   - anchor: <a href>
//   - css-image: url(...) values in <style> blocks and style attributes
//
// MIME messages are walked with an explicit stack of multipart readers so
// that adversarial nesting cannot exhaust the goroutine stack. Only text/html
// leaves are inspected.
package extract
