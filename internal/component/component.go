// Package component holds the static library of draggable HTML snippets and
// the payload format used to carry one across a drag-and-drop.
package component

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// MIMEType identifies the drag-and-drop payload.
const MIMEType = "application/vnd.live-dev-sandbox.component+json"

// ErrInvalid is returned by Decode for payloads without an id or html.
var ErrInvalid = errors.New("invalid component payload")

// Component is one draggable snippet.
type Component struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	HTML string `json:"html"`
}

// Category groups components for display.
type Category struct {
	Name       string      `json:"name"`
	Components []Component `json:"components"`
}

// Encode serializes c as the drag-and-drop payload.
func Encode(c Component) ([]byte, error) {
	return json.Marshal(c)
}

// Decode parses a payload produced by Encode.
func Decode(data []byte) (Component, error) {
	var c Component
	if err := json.Unmarshal(data, &c); err != nil {
		return Component{}, fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	if c.ID == "" || c.HTML == "" {
		return Component{}, fmt.Errorf("%w: id and html are required", ErrInvalid)
	}
	return c, nil
}

// Insert places html before the last </body> in doc, or appends it when the
// document has no body close tag.
func Insert(doc, html string) string {
	i := strings.LastIndex(doc, "</body>")
	if i < 0 {
		if doc == "" {
			return html
		}
		return doc + "\n" + html
	}
	return doc[:i] + html + "\n" + doc[i:]
}

// Find looks a component up by id across the catalog.
func Find(id string) (Component, bool) {
	for _, cat := range catalog {
		for _, c := range cat.Components {
			if c.ID == id {
				return c, true
			}
		}
	}
	return Component{}, false
}

// Catalog returns a copy of the built-in component library.
func Catalog() []Category {
	out := make([]Category, len(catalog))
	for i, cat := range catalog {
		out[i] = Category{Name: cat.Name, Components: append([]Component(nil), cat.Components...)}
	}
	return out
}

var catalog = []Category{
	{
		Name: "Layout",
		Components: []Component{
			{ID: "container", Name: "Container", HTML: "<div class=\"p-4 border border-dashed my-2 border-gray-600 rounded-lg\">\n  <!-- Drop other components here -->\n</div>"},
			{ID: "form", Name: "Form", HTML: "<form class=\"space-y-6 p-4 border border-gray-700 rounded-lg my-2\">\n  \n</form>"},
		},
	},
	{
		Name: "Content",
		Components: []Component{
			{ID: "heading", Name: "Heading", HTML: `<h1 class="text-2xl font-bold my-4" contenteditable="true">New Heading</h1>`},
			{ID: "paragraph", Name: "Paragraph", HTML: `<p class="my-2" contenteditable="true">This is a new paragraph. You can edit this text.</p>`},
			{ID: "link", Name: "Link", HTML: `<a href="#" class="text-blue-400 hover:underline my-2" contenteditable="true">This is a link</a>`},
			{ID: "list", Name: "List", HTML: "<ul class=\"list-disc list-inside my-2 space-y-1 text-gray-300\">\n  <li contenteditable=\"true\">List item 1</li>\n  <li contenteditable=\"true\">List item 2</li>\n</ul>"},
		},
	},
	{
		Name: "Form Controls",
		Components: []Component{
			{ID: "text-input", Name: "Text Input", HTML: "<div class=\"my-2\">\n  <label for=\"text-input\" class=\"block mb-2 text-sm font-medium text-gray-300\">Your Name</label>\n  <input type=\"text\" id=\"text-input\" class=\"bg-gray-700 border border-gray-600 text-white text-sm rounded-lg focus:ring-blue-500 focus:border-blue-500 block w-full p-2.5\" placeholder=\"John Doe\" required>\n</div>"},
			{ID: "password-input", Name: "Password", HTML: "<div class=\"my-2\">\n  <label for=\"password-input\" class=\"block mb-2 text-sm font-medium text-gray-300\">Password</label>\n  <input type=\"password\" id=\"password-input\" class=\"bg-gray-700 border border-gray-600 text-white text-sm rounded-lg focus:ring-blue-500 focus:border-blue-500 block w-full p-2.5\" placeholder=\"••••••••\" required>\n</div>"},
			{ID: "textarea", Name: "Text Area", HTML: "<div class=\"my-2\">\n  <label for=\"message\" class=\"block mb-2 text-sm font-medium text-gray-300\">Your message</label>\n  <textarea id=\"message\" rows=\"4\" class=\"block p-2.5 w-full text-sm text-white bg-gray-700 rounded-lg border border-gray-600 focus:ring-blue-500 focus:border-blue-500\" placeholder=\"Leave a comment...\"></textarea>\n</div>"},
			{ID: "checkbox", Name: "Checkbox", HTML: "<div class=\"flex items-center my-2\">\n  <input id=\"remember\" type=\"checkbox\" value=\"\" class=\"w-4 h-4 text-blue-600 bg-gray-700 border-gray-600 rounded focus:ring-blue-500 focus:ring-2\">\n  <label for=\"remember\" class=\"ml-2 text-sm font-medium text-gray-300\">Remember me</label>\n</div>"},
			{ID: "radio-group", Name: "Radio Group", HTML: "<fieldset class=\"my-2\">\n  <legend class=\"text-sm font-medium text-gray-300 mb-2\">Choose an option</legend>\n  <div class=\"flex items-center mb-2\">\n    <input id=\"radio-1\" type=\"radio\" name=\"radios\" value=\"option1\" class=\"w-4 h-4 text-blue-600 bg-gray-700 border-gray-600 focus:ring-blue-500 focus:ring-2\" checked>\n    <label for=\"radio-1\" class=\"ml-2 text-sm font-medium text-gray-300\">Option 1</label>\n  </div>\n  <div class=\"flex items-center\">\n    <input id=\"radio-2\" type=\"radio\" name=\"radios\" value=\"option2\" class=\"w-4 h-4 text-blue-600 bg-gray-700 border-gray-600 focus:ring-blue-500 focus:ring-2\">\n    <label for=\"radio-2\" class=\"ml-2 text-sm font-medium text-gray-300\">Option 2</label>\n  </div>\n</fieldset>"},
			{ID: "dropdown", Name: "Dropdown", HTML: "<div class=\"my-2\">\n  <label for=\"countries\" class=\"block mb-2 text-sm font-medium text-gray-300\">Select an option</label>\n  <select id=\"countries\" class=\"bg-gray-700 border border-gray-600 text-white text-sm rounded-lg focus:ring-blue-500 focus:border-blue-500 block w-full p-2.5\">\n    <option selected>Choose an option</option>\n    <option value=\"1\">Option 1</option>\n    <option value=\"2\">Option 2</option>\n    <option value=\"3\">Option 3</option>\n  </select>\n</div>"},
			{ID: "submit-button", Name: "Submit Button", HTML: `<button type="submit" class="text-white bg-blue-700 hover:bg-blue-800 focus:ring-4 focus:outline-none focus:ring-blue-300 font-medium rounded-lg text-sm w-full sm:w-auto px-5 py-2.5 text-center my-2">Submit</button>`},
		},
	},
	{
		Name: "Media",
		Components: []Component{
			{ID: "image", Name: "Image", HTML: `<img src="https://via.placeholder.com/150" alt="placeholder image" class="my-2 rounded-lg">`},
		},
	},
}
