package docker

// wrapper is passed to `node -e`; the user's source arrives as argv[1].
//
// Console calls are re-emitted as one JSON pair per line on stdout so the
// level survives and multi-line text stays one entry. Timers are disabled
// before the source runs, which gives the same capture window as the
// embedded VM: synchronous code plus the microtask drain.
const wrapper = `
const vm = require('vm');
const src = process.argv[1] || '';
const exit = process.exit.bind(process);
const later = setImmediate;
const msg = (e) => (e !== null && typeof e === 'object' && e.message !== undefined) ? String(e.message) : String(e);
const fail = (text) => { process.stderr.write(text); exit(1); };
for (const level of ['log', 'info', 'warn', 'error', 'debug']) {
  console[level] = (...args) => process.stdout.write(JSON.stringify([level, args.map(String).join(' ')]) + '\n');
}
for (const name of ['setTimeout', 'setInterval', 'setImmediate']) globalThis[name] = () => 0;
process.on('unhandledRejection', (e) => fail('Uncaught (in promise) ' + msg(e)));
try {
  vm.runInThisContext(src, { filename: 'main.js' });
} catch (e) {
  fail(msg(e));
}
later(() => exit(0));
`
