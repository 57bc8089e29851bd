package browser

// Script is a named JavaScript function declaration. Element scripts are
// called with the element bound to `this`; page scripts run in the page's
// main world. The name lets test doubles dispatch on the script without
// parsing its source.
type Script struct {
	Name   string
	Source string
}

// ScriptInspect snapshots connection, visibility, enabled state, geometry,
// toggle or selection state and text.
var ScriptInspect = Script{Name: "inspect", Source: `function() {
	const el = this;
	if (!el || !el.isConnected) {
		return { connected: false, visible: false, enabled: false, box: { x: 0, y: 0, width: 0, height: 0 }, checked: "", text: "" };
	}
	const rect = el.getBoundingClientRect();
	const style = window.getComputedStyle(el);
	const visible = rect.width > 0 && rect.height > 0 &&
		style.display !== "none" && style.visibility !== "hidden" && style.opacity !== "0";
	const disabled = el.disabled === true ||
		el.getAttribute("aria-disabled") === "true" ||
		(el.closest && el.closest("fieldset[disabled]") !== null);
	let checked = el.getAttribute("aria-checked") || el.getAttribute("aria-pressed") ||
		el.getAttribute("aria-selected") || "";
	if (!checked && (el.type === "checkbox" || el.type === "radio")) {
		checked = String(el.checked);
	}
	if (!checked) {
		const inner = el.querySelector && el.querySelector("input[type=checkbox],[role=switch],[aria-checked]");
		if (inner) {
			checked = inner.getAttribute("aria-checked") || String(!!inner.checked);
		}
	}
	const text = (el.value !== undefined && typeof el.value === "string" ? el.value : el.innerText) || "";
	return {
		connected: true,
		visible: visible,
		enabled: !disabled,
		box: { x: rect.left, y: rect.top, width: rect.width, height: rect.height },
		checked: checked,
		text: text.slice(0, 4000)
	};
}`}

// ScriptReadText returns an input's value or an editable element's text.
var ScriptReadText = Script{Name: "read_text", Source: `function() {
	if (this.value !== undefined && typeof this.value === "string") {
		return this.value;
	}
	return (this.innerText || this.textContent || "").replace(/\u200b/g, "").replace(/\n$/, "");
}`}

// ScriptAssignText sets the element's value through the native property
// setter (or insertText for contenteditable) and fires input and change.
// It returns the text read back afterwards.
var ScriptAssignText = Script{Name: "assign_text", Source: `function(text) {
	const el = this;
	el.focus();
	if (el instanceof HTMLInputElement || el instanceof HTMLTextAreaElement) {
		const proto = el instanceof HTMLInputElement ? HTMLInputElement.prototype : HTMLTextAreaElement.prototype;
		const setter = Object.getOwnPropertyDescriptor(proto, "value").set;
		setter.call(el, text);
	} else {
		const sel = window.getSelection();
		const range = document.createRange();
		range.selectNodeContents(el);
		sel.removeAllRanges();
		sel.addRange(range);
		if (!document.execCommand("insertText", false, text)) {
			el.textContent = text;
		}
	}
	el.dispatchEvent(new Event("input", { bubbles: true }));
	el.dispatchEvent(new Event("change", { bubbles: true }));
	if (el.value !== undefined && typeof el.value === "string") {
		return el.value;
	}
	return (el.innerText || el.textContent || "").replace(/\u200b/g, "").replace(/\n$/, "");
}`}

// ScriptClearValue empties the element programmatically and returns the
// remaining text.
var ScriptClearValue = Script{Name: "clear_value", Source: `function() {
	const el = this;
	if (el instanceof HTMLInputElement || el instanceof HTMLTextAreaElement) {
		const proto = el instanceof HTMLInputElement ? HTMLInputElement.prototype : HTMLTextAreaElement.prototype;
		Object.getOwnPropertyDescriptor(proto, "value").set.call(el, "");
	} else {
		el.focus();
		document.execCommand("selectAll", false, null);
		if (!document.execCommand("delete", false, null)) {
			el.textContent = "";
		}
	}
	el.dispatchEvent(new Event("input", { bubbles: true }));
	if (el.value !== undefined && typeof el.value === "string") {
		return el.value;
	}
	return (el.innerText || el.textContent || "").replace(/\u200b/g, "").replace(/\n$/, "");
}`}

// ScriptFileCount returns the number of files a file input holds, or -1 if
// the element has no file list.
var ScriptFileCount = Script{Name: "file_count", Source: `function() {
	return this.files ? this.files.length : -1;
}`}

// ScriptFocus scrolls the element into the middle of the viewport and focuses it.
var ScriptFocus = Script{Name: "focus", Source: `function() {
	this.scrollIntoView({ block: "center", inline: "center" });
	this.focus();
	return true;
}`}

// ScriptPageText returns the visible text of the whole document. Page script.
var ScriptPageText = Script{Name: "page_text", Source: `function() {
	return document.body ? document.body.innerText : "";
}`}
