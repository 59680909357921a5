package report

// voxelDashboardHTML embeds the per-voxel charts side by side. The
// three verbs are the escaped voxel name: page title, peaks iframe and
// run-history iframe.
const voxelDashboardHTML = `<!DOCTYPE html>
<html>
<head>
<title>Voxel %s</title>
<style>
  body { margin: 0; background: #100c2a; color: #eee; font-family: sans-serif; }
  h1 { margin: 12px 16px; font-size: 18px; }
  .row { display: flex; flex-wrap: wrap; }
  iframe { border: 0; margin: 8px; background: #100c2a; }
</style>
</head>
<body>
<h1>Voxel dashboard</h1>
<div class="row">
  <iframe src="/report/voxels/%s/peaks" width="920" height="940"></iframe>
  <iframe src="/report/voxels/%s/runs" width="1220" height="640"></iframe>
</div>
</body>
</html>
`
