package browser

// stealthScript runs before any page script on every new document. It hides
// the most common headless-automation fingerprints; Walmart's bot checks
// key on these before anything subtler.
const stealthScript = `
Object.defineProperty(navigator, 'webdriver', { get: () => undefined });
window.chrome = { runtime: {} };
Object.defineProperty(navigator, 'plugins', { get: () => [1, 2, 3, 4, 5] });
Object.defineProperty(navigator, 'languages', { get: () => ['en-US', 'en'] });
`
