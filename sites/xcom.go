package sites

import (
	"encoding/json"
	"fmt"
)

// XCom is the adapter for x.com list feeds. The selectors in here chase the
// site's current markup and are expected to rot; nothing outside this file
// knows about them.
type XCom struct{}

func NewXCom() *XCom { return &XCom{} }

func (x *XCom) Origin() string { return "https://x.com" }

func (x *XCom) PermalinkURL(href string) string {
	return "https://x.com" + href
}

func (x *XCom) FeedReady() string {
	return `!!document.querySelector('article time')`
}

func (x *XCom) AnchorPresent(id string) string {
	return fmt.Sprintf(`!!document.querySelector('a[href*="/status/%s"]')`, id)
}

func (x *XCom) ScrollBy(pixels int) string {
	return fmt.Sprintf(`window.scrollBy(0, %d)`, pixels)
}

func (x *XCom) LoginProbe() string {
	return `!!document.querySelector('a[data-testid="AppTabBar_Profile_Link"]')`
}

// Items maps every rendered article to a plain object. Member-reply rows
// are dropped page-side; rows without a resolvable status id are dropped
// too so the extractor never sees half-parsed items.
func (x *XCom) Items() string {
	return `(() => {
  const detectReshare = (html) =>
    html.includes('aria-label="Repost"') ||
    html.includes('data-reposted-candidate') ||
    html.includes('retweeted') ||
    html.includes('M4.75 3.79');

  return [...document.querySelectorAll('article')].map((el) => {
    const timeEl = el.querySelector('time');
    if (!timeEl) return null;
    const timeHref = (timeEl.closest('a') || {getAttribute: () => ''}).getAttribute('href') || '';
    const id = timeHref.split('/status/')[1];
    const username = timeHref.split('/')[1];
    if (!id || !username) return null;

    const timestamp = new Date(timeEl.dateTime)
      .toLocaleString('sv-SE', { timeZone: 'Asia/Jerusalem' })
      .replace(' ', 'T');

    const html = el.outerHTML;
    const reshare = detectReshare(html);

    let resharerName = '';
    let resharerUsername = '';
    if (reshare) {
      const ctx = el.querySelector('span[data-testid="socialContext"] span');
      resharerName = (ctx && ctx.innerText || '').trim();
      const m = html.match(/<a[^>]+href="\/([^"]+)"[^>]*>.*?reposted/);
      if (m) resharerUsername = m[1];
    }

    const authorEl = el.querySelector('div[data-testid="User-Name"] span');
    const authorName = (authorEl && authorEl.innerText || '').trim();

    // List-member replies render with a distinct connector style; skip them.
    if (el.querySelector('.r-f8sm7e.r-m5arl1') && !el.innerText.includes('Replying to')) return null;

    return { id, username, href: '/' + username + '/status/' + id,
             reshare, resharerName, resharerUsername, authorName, timestamp };
  }).filter(Boolean);
})()`
}

func (x *XCom) ItemPresent(id string) string {
	return fmt.Sprintf(`(() => {
  return [...document.querySelectorAll('article')].some((a) => {
    const timeHref = ((a.querySelector('time') || {}).closest ? (a.querySelector('time').closest('a') || {getAttribute: () => ''}).getAttribute('href') : '') || '';
    if (timeHref.includes('%s')) return true;
    return [...a.querySelectorAll('a')].some((l) => (l.getAttribute('href') || '').includes('%s'));
  });
})()`, id, id)
}

// ForceRender waits for font readiness and decodes every image inside the
// target article before geometry is measured. Rejects when images are not
// ready so the caller can treat it as a presence timeout.
func (x *XCom) ForceRender(id string) string {
	return fmt.Sprintf(`(async () => {
  const art = [...document.querySelectorAll('article')].find((a) =>
    [...a.querySelectorAll('a')].some((l) => (l.getAttribute('href') || '').includes('%s')));
  if (!art) throw new Error('article not found');

  if (document.fonts && document.fonts.ready) await document.fonts.ready;

  const imgs = [...art.querySelectorAll('img')];
  await Promise.all(imgs.map((img) => img.decode ? img.decode().catch(() => {}) : Promise.resolve()));
  if (!imgs.every((i) => i.complete && i.naturalWidth > 0 && i.naturalHeight > 0)) {
    throw new Error('images not fully ready');
  }

  const urls = new Set();
  for (const el of [art, ...art.querySelectorAll('*')]) {
    const bg = getComputedStyle(el).backgroundImage;
    if (bg && bg !== 'none') {
      for (const m of bg.matchAll(/url\((["']?)(.*?)\1\)/g)) urls.add(m[2]);
    }
  }
  await Promise.all([...urls].map((u) => new Promise((res) => {
    const im = new Image();
    im.onload = im.onerror = () => res();
    im.src = u;
  })));

  // Two frames so the browser has actually painted the decoded content.
  await new Promise((r) => requestAnimationFrame(() => requestAnimationFrame(r)));
  return true;
})()`, id)
}

// CaptureRegion scrolls the target into view, settles, then measures from
// the top of the preceding article (reshare attribution context) down to
// the bottom of the target's engagement row.
func (x *XCom) CaptureRegion(id string) string {
	return fmt.Sprintf(`(() => {
  const articles = [...document.querySelectorAll('article')];
  const idx = articles.findIndex((a) =>
    [...a.querySelectorAll('a')].some((l) => (l.getAttribute('href') || '').includes('%s')));
  if (idx === -1) return null;

  const main = articles[idx];
  const prev = articles[idx - 1] || null;

  const mainRect = main.getBoundingClientRect();
  window.scrollTo(0, Math.max(0, Math.round(mainRect.top + window.scrollY)));

  return new Promise((resolve) => {
    setTimeout(() => {
      const like = main.querySelector('[data-testid="like"]');
      const engagement = like ? like.closest('div[role="group"]') : null;
      if (!engagement) { resolve(null); return; }

      const topRect = (prev || main).getBoundingClientRect();
      const engRect = engagement.getBoundingClientRect();

      const y = Math.max(0, Math.round(topRect.top + window.scrollY));
      const height = Math.round((engRect.top + engRect.height + window.scrollY) - (topRect.top + window.scrollY));

      resolve({ x: Math.round(topRect.left), y: y,
                width: Math.round(topRect.width), height: height });
    }, 3000);
  });
})()`, id)
}

// HideChrome removes the pinned translucent "Post" overlay banner (found by
// position + opacity, not by class), follow prompts, translation buttons and
// secondary-action controls.
func (x *XCom) HideChrome() string {
	return `(() => {
  for (const span of document.querySelectorAll('h2 span')) {
    if (span.innerText.trim() !== 'Post') continue;
    const outer = span.closest('div') && span.closest('div').parentElement
      && span.closest('div').parentElement.parentElement
      && span.closest('div').parentElement.parentElement.parentElement;
    if (!outer) continue;
    const rect = outer.getBoundingClientRect();
    const alpha = parseFloat(getComputedStyle(outer).backgroundColor.split(',')[3]) || 1;
    if (rect.top < 30 && alpha < 0.95) outer.style.display = 'none';
  }

  for (const btn of document.querySelectorAll('button[aria-label^="Follow"]')) {
    const wrapper = btn.closest('div.css-175oi2r');
    if (wrapper) wrapper.style.display = 'none';
  }

  for (const btn of document.querySelectorAll('button[aria-label="Show translation"]')) {
    const svg = btn.parentElement && btn.parentElement.querySelector('svg');
    if (svg) svg.remove();
    btn.remove();
  }

  for (const btn of document.querySelectorAll('button[aria-label="Grok actions"]')) {
    const wrapper = btn.closest('div.css-175oi2r');
    if (wrapper) wrapper.style.display = 'none';
  }
  return true;
})()`
}

// ReshareBanner injects an attribution row above the permalink view, which
// renders reshares without one.
func (x *XCom) ReshareBanner(name string) string {
	quoted, _ := json.Marshal(name)
	return fmt.Sprintf(`(() => {
  const name = %s;
  const art = document.querySelector('article');
  const placeholder = art && art.firstElementChild && art.firstElementChild.firstElementChild
    && art.firstElementChild.firstElementChild.children[0];
  if (!placeholder) return false;
  const row = document.createElement('div');
  row.setAttribute('data-reposted-candidate', 'true');
  row.style.cssText = 'margin-bottom:4px;color:rgb(83,100,113);font-size:13px;font-weight:700;';
  row.textContent = name + ' reposted';
  placeholder.innerHTML = '';
  placeholder.appendChild(row);
  return true;
})()`, quoted)
}

func (x *XCom) FontPatch() string {
	return `(() => {
  if (document.querySelector('#__capture_font_patch')) return true;
  const style = document.createElement('style');
  style.id = '__capture_font_patch';
  style.innerHTML = '[data-testid="tweetText"], [data-testid="tweetText"] *,' +
    '[data-testid="app-text-transition-container"], [data-testid="app-text-transition-container"] *,' +
    'time, time *, [data-testid="like"], [data-testid="retweet"], [data-testid="viewCount"], [data-testid="reply"]' +
    '{ font-size: 24px !important; font-family: "Noto Sans Hebrew" !important; }';
  document.head.appendChild(style);
  return true;
})()`
}
