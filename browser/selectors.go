package browser

// Selectors against the upstream web client. These chase a versioned
// third-party UI and are the only thing that needs touching when
// upstream ships a redesign.
const (
	// challengeSelector matches the canvas the QR challenge is rendered
	// into.
	challengeSelector = `div[data-ref] canvas`
	// challengeRegionSelector matches the pane enclosing the challenge,
	// used for the screenshot fallback.
	challengeRegionSelector = `div[data-ref]`
	// chatPaneSelector matches the conversation list pane, present only
	// after authentication.
	chatPaneSelector = `#pane-side`
	// chatItemsSelector matches individual conversation rows.
	chatItemsSelector = `#pane-side div[role="listitem"]`
)

// continueSelectors are the dismiss strategies for post-authentication
// interstitial dialogs, tried in order.
var continueSelectors = []string{
	`div[data-animate-modal-popup="true"] div[role="button"]`,
	`div[role="dialog"] button`,
	`div[role="dialog"] div[role="button"]`,
}

// placeholderImageURL stands in for conversations without an avatar.
const placeholderImageURL = "https://placehold.co/600x400"
